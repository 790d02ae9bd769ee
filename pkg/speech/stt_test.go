package speech

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRecognizer struct {
	got []byte
}

func (c *captureRecognizer) Recognize(_ context.Context, audio []byte) (string, error) {
	c.got = append([]byte(nil), audio...)
	return "captured", nil
}

func TestStreamAdapterAccumulates(t *testing.T) {
	rec := &captureRecognizer{}
	a := NewStreamAdapter(rec)

	require.NoError(t, a.StreamStart())
	require.NoError(t, a.StreamData([]byte{1, 2}))
	require.NoError(t, a.StreamData([]byte{3}))

	text, err := a.StreamStop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "captured", text)
	assert.Equal(t, []byte{1, 2, 3}, rec.got)
}

func TestStreamAdapterStopWithoutStart(t *testing.T) {
	a := NewStreamAdapter(&captureRecognizer{})
	text, err := a.StreamStop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestStreamAdapterDataBeforeStartIgnored(t *testing.T) {
	rec := &captureRecognizer{}
	a := NewStreamAdapter(rec)

	require.NoError(t, a.StreamData([]byte{9, 9}))
	require.NoError(t, a.StreamStart())
	require.NoError(t, a.StreamData([]byte{1}))

	_, err := a.StreamStop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, rec.got)
}

// streamingEngine supports native per-client streams.
type streamingEngine struct {
	streams int
}

func (e *streamingEngine) Recognize(context.Context, []byte) (string, error) {
	return "native", nil
}

func (e *streamingEngine) NewStream() StreamRecognizer {
	e.streams++
	return NewStreamAdapter(e)
}

func TestStreamFactoryNativeStreamsPerClient(t *testing.T) {
	engine := &streamingEngine{}
	factory := StreamFactory(engine, true)

	s1 := factory()
	s2 := factory()
	assert.Equal(t, 2, engine.streams, "each client opens its own stream")
	assert.NotSame(t, s1, s2)
}

func TestStreamFactoryBuffersWithoutNativeSupport(t *testing.T) {
	rec := &captureRecognizer{}
	factory := StreamFactory(rec, true)

	s1 := factory()
	s2 := factory()
	_, ok := s1.(*StreamAdapter)
	assert.True(t, ok, "engines without native streams get the buffering adapter")
	assert.NotSame(t, s1, s2, "adapters are per client, never shared")
}

func TestStreamFactoryBufferedModeIgnoresNativeStreams(t *testing.T) {
	engine := &streamingEngine{}
	factory := StreamFactory(engine, false)

	s := factory()
	_, ok := s.(*StreamAdapter)
	assert.True(t, ok)
	assert.Zero(t, engine.streams)
}

func TestWavFromPCMHeader(t *testing.T) {
	pcm := make([]byte, 640)
	wav := wavFromPCM(pcm, 16000)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestEnergyVAD(t *testing.T) {
	v := NewEnergyVAD(500)

	silence := make([]byte, 320)
	speech := make([]byte, 320)
	for i := 0; i < len(speech); i += 2 {
		binary.LittleEndian.PutUint16(speech[i:], uint16(int16(8000)))
	}

	got, err := v.IsSpeech(silence)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = v.IsSpeech(speech)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = v.IsSpeech(nil)
	require.NoError(t, err)
	assert.False(t, got)
}
