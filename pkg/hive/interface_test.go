package hive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalateRelaysUpstream(t *testing.T) {
	f := newRouterFixture(t)
	upstream := &fakeConn{peer: "ws:10.0.0.100:6799"}
	f.iface.SetUpstream(upstream)

	sender, _ := f.connect(t, "ws:10.0.0.2:4242", SessionOptions{})
	_, sibling := f.connect(t, "ws:10.0.0.3:4242", SessionOptions{})

	f.router.HandleEnvelope(sender, &Envelope{
		Kind:    KindEscalate,
		Payload: json.RawMessage(`{"type": "unhandled.intent"}`),
	})

	// escalate goes up, never sideways
	require.Equal(t, 1, upstream.sentCount())
	assert.Zero(t, sibling.sentCount())

	env, err := ParseEnvelope(upstream.sent[0])
	require.NoError(t, err)
	assert.Equal(t, KindEscalate, env.Kind)
	assert.True(t, env.RouteContains("ws:10.0.0.2:4242"))
}

func TestPropagateReachesUpstreamAndSiblings(t *testing.T) {
	f := newRouterFixture(t)
	upstream := &fakeConn{peer: "ws:10.0.0.100:6799"}
	f.iface.SetUpstream(upstream)

	sender, senderConn := f.connect(t, "ws:10.0.0.2:4242", SessionOptions{})
	_, sibling := f.connect(t, "ws:10.0.0.3:4242", SessionOptions{})

	f.router.HandleEnvelope(sender, &Envelope{
		Kind:    KindPropagate,
		Payload: json.RawMessage(`{}`),
	})

	assert.Equal(t, 1, upstream.sentCount())
	assert.Equal(t, 1, sibling.sentCount())
	assert.Zero(t, senderConn.sentCount())
}

func TestSendToPeerMissing(t *testing.T) {
	f := newRouterFixture(t)
	err := f.iface.SendToPeer("ws:10.0.0.9:1", []byte("hello"))
	assert.Error(t, err)
}

func TestSendEncodesStructuredPayloads(t *testing.T) {
	f := newRouterFixture(t)
	_, conn := f.connect(t, "ws:10.0.0.2:4242", SessionOptions{})

	require.NoError(t, f.iface.SendToPeer("ws:10.0.0.2:4242", map[string]string{"k": "v"}))
	require.NoError(t, f.iface.SendToPeer("ws:10.0.0.2:4242", "plain text"))

	require.Equal(t, 2, conn.sentCount())
	assert.JSONEq(t, `{"k":"v"}`, string(conn.sent[0]))
	assert.Equal(t, "plain text", string(conn.sent[1]))
}
