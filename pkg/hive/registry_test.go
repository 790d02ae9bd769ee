package hive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
)

// fakeConn records everything written to it.
type fakeConn struct {
	peer string

	mu        sync.Mutex
	sent      [][]byte
	binary    [][]byte
	closed    bool
	closeCode int
	reason    string
}

func (c *fakeConn) Peer() string { return c.peer }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binary = append(c.binary, data)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.reason = reason
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeListener tracks start/stop calls.
type fakeListener struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (l *fakeListener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = true
}

func (l *fakeListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
}

// busEvents captures messages of the given types from a bus.
type busEvents struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func captureEvents(b *bus.MessageBus, types ...string) *busEvents {
	ev := &busEvents{}
	for _, msgType := range types {
		b.On(msgType, func(m bus.Message) {
			ev.mu.Lock()
			ev.msgs = append(ev.msgs, m)
			ev.mu.Unlock()
		})
	}
	return ev
}

func (ev *busEvents) count() int {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return len(ev.msgs)
}

func (ev *busEvents) waitCount(t *testing.T, n int) []bus.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev.mu.Lock()
		if len(ev.msgs) >= n {
			out := make([]bus.Message, len(ev.msgs))
			copy(out, ev.msgs)
			ev.mu.Unlock()
			return out
		}
		ev.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %d", n, ev.count())
	return nil
}

func newTestRegistry(policy IPPolicy) (*Registry, *bus.MessageBus, *fakeListener) {
	b := bus.NewMessageBus(100)
	listener := &fakeListener{}
	reg := NewRegistry(policy, b, func(string, chan []byte, bool) AudioListener {
		return listener
	})
	return reg, b, listener
}

func TestRegisterCreatesSessionAndStartsListener(t *testing.T) {
	reg, b, listener := newTestRegistry(IPPolicy{Mode: "deny"})
	defer b.Close()

	conn := &fakeConn{peer: "ws:10.0.0.2:4242"}
	session, err := reg.Register(conn, SessionOptions{Platform: "satellite-v1"})
	require.NoError(t, err)
	assert.Equal(t, "satellite-v1", session.Platform)
	assert.Equal(t, "connected", session.Status)
	assert.True(t, reg.Has("ws:10.0.0.2:4242"))

	listener.mu.Lock()
	assert.True(t, listener.started)
	listener.mu.Unlock()
}

func TestRegisterDenyListKicks(t *testing.T) {
	reg, b, _ := newTestRegistry(IPPolicy{Mode: "deny", IPs: []string{"10.0.0.66"}})
	defer b.Close()

	conn := &fakeConn{peer: "ws:10.0.0.66:4242"}
	_, err := reg.Register(conn, SessionOptions{})
	assert.ErrorIs(t, err, ErrPolicyViolation)
	assert.False(t, reg.Has(conn.peer))
	assert.True(t, conn.closed)
	assert.Equal(t, CloseCodePolicy, conn.closeCode)
	assert.Equal(t, "Blacklisted ip", conn.reason)
}

func TestRegisterAllowListKicksUnknown(t *testing.T) {
	reg, b, _ := newTestRegistry(IPPolicy{Mode: "allow", IPs: []string{"10.0.0.2"}})
	defer b.Close()

	allowed := &fakeConn{peer: "ws:10.0.0.2:1"}
	_, err := reg.Register(allowed, SessionOptions{})
	require.NoError(t, err)

	unknown := &fakeConn{peer: "ws:10.0.0.3:1"}
	_, err = reg.Register(unknown, SessionOptions{})
	assert.ErrorIs(t, err, ErrPolicyViolation)
	assert.Equal(t, "Unknown ip", unknown.reason)
}

func TestUnregisterStopsListenerThenRemoves(t *testing.T) {
	reg, b, listener := newTestRegistry(IPPolicy{Mode: "deny"})
	defer b.Close()
	events := captureEvents(b, "hive.client.disconnect")

	conn := &fakeConn{peer: "ws:10.0.0.2:4242"}
	_, err := reg.Register(conn, SessionOptions{Names: []string{"kitchen"}})
	require.NoError(t, err)

	ok := reg.Unregister(conn.peer, 1000, "unregister client request")
	assert.True(t, ok)
	assert.False(t, reg.Has(conn.peer))

	listener.mu.Lock()
	assert.True(t, listener.stopped)
	listener.mu.Unlock()

	msgs := events.waitCount(t, 1)
	assert.Equal(t, "kitchen", msgs[0].Context["user"])
	assert.Equal(t, "10.0.0.2", msgs[0].Data["ip"])
	assert.True(t, conn.closed)
}

// stopOrderListener records whether the session was still resolvable
// when Stop ran.
type stopOrderListener struct {
	check         func() bool
	presentAtStop bool
}

func (l *stopOrderListener) Start() {}

func (l *stopOrderListener) Stop() {
	l.presentAtStop = l.check()
}

func TestUnregisterStopsListenerBeforeRemoval(t *testing.T) {
	b := bus.NewMessageBus(100)
	defer b.Close()

	listener := &stopOrderListener{}
	var reg *Registry
	reg = NewRegistry(IPPolicy{Mode: "deny"}, b, func(peer string, _ chan []byte, _ bool) AudioListener {
		listener.check = func() bool { return reg.Has(peer) }
		return listener
	})

	conn := &fakeConn{peer: "ws:10.0.0.2:4242"}
	_, err := reg.Register(conn, SessionOptions{})
	require.NoError(t, err)

	require.True(t, reg.Unregister(conn.peer, 1000, "bye"))
	assert.True(t, listener.presentAtStop, "session removed before the segmenter was stopped")
	assert.False(t, reg.Has(conn.peer))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg, b, _ := newTestRegistry(IPPolicy{Mode: "deny"})
	defer b.Close()
	events := captureEvents(b, "hive.client.disconnect")

	conn := &fakeConn{peer: "ws:10.0.0.2:4242"}
	_, err := reg.Register(conn, SessionOptions{})
	require.NoError(t, err)

	assert.True(t, reg.Unregister(conn.peer, 1000, "bye"))
	assert.False(t, reg.Unregister(conn.peer, 1000, "bye"))
	assert.False(t, reg.Unregister("ws:1.2.3.4:999", 1000, "bye"))

	events.waitCount(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, events.count())
}

func TestUnknownUserFallback(t *testing.T) {
	s := &Session{}
	assert.Equal(t, "unknown_user", s.User())
}

func TestIPPolicyModes(t *testing.T) {
	deny := IPPolicy{Mode: "deny", IPs: []string{"1.1.1.1"}}
	assert.False(t, deny.Allows("1.1.1.1"))
	assert.True(t, deny.Allows("2.2.2.2"))

	allow := IPPolicy{Mode: "allow", IPs: []string{"1.1.1.1"}}
	assert.True(t, allow.Allows("1.1.1.1"))
	assert.False(t, allow.Allows("2.2.2.2"))
}

func TestPeerParts(t *testing.T) {
	proto, ip, port := PeerParts("ws:10.0.0.2:4242")
	assert.Equal(t, "ws", proto)
	assert.Equal(t, "10.0.0.2", ip)
	assert.Equal(t, "4242", port)

	_, ip, port = PeerParts("garbage")
	assert.Empty(t, ip)
	assert.Empty(t, port)
}
