package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTTS counts synthesis calls and returns deterministic audio.
type stubTTS struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *stubTTS) Synthesize(_ context.Context, utterance string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, assert.AnError
	}
	return []byte("AUDIO:" + utterance), nil
}

func (s *stubTTS) Engine() string { return "stub" }
func (s *stubTTS) Voice() string  { return "test" }

func (s *stubTTS) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordSink captures frames in arrival order, tagging their kind.
type recordSink struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordSink) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, "text:"+string(payload))
	return nil
}

func (r *recordSink) SendBinary(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, "binary:"+string(data))
	return nil
}

func (r *recordSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	copy(out, r.frames)
	return out
}

func waitSink(t *testing.T, sink *recordSink, frames int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := sink.snapshot(); len(got) >= frames {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sink never received %d frames, got %v", frames, sink.snapshot())
	return nil
}

func TestDispatcherAudioThenPayload(t *testing.T) {
	tts := &stubTTS{}
	sink := &recordSink{}
	d := NewDispatcher(tts, nil, func(string) (Sink, bool) { return sink, true })
	d.Start()
	defer d.Stop()

	d.Enqueue(Request{Peer: "ws:1:1", Utterance: "hello", Payload: []byte(`{"type":"speak"}`)})

	frames := waitSink(t, sink, 2)
	assert.Equal(t, []string{"binary:AUDIO:hello", `text:{"type":"speak"}`}, frames)
}

func TestDispatcherCacheSkipsEngine(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	tts := &stubTTS{}
	sink := &recordSink{}
	d := NewDispatcher(tts, cache, func(string) (Sink, bool) { return sink, true })
	d.Start()
	defer d.Stop()

	d.Enqueue(Request{Peer: "ws:1:1", Utterance: "same words"})
	d.Enqueue(Request{Peer: "ws:1:1", Utterance: "same words"})

	waitSink(t, sink, 2)
	assert.Equal(t, 1, tts.callCount(), "second request served from cache")
}

func TestDispatcherGoneClientDoesNotStopLoop(t *testing.T) {
	tts := &stubTTS{}
	sink := &recordSink{}
	d := NewDispatcher(tts, nil, func(peer string) (Sink, bool) {
		if peer == "ws:here:1" {
			return sink, true
		}
		return nil, false
	})
	d.Start()
	defer d.Stop()

	d.Enqueue(Request{Peer: "ws:gone:1", Utterance: "nobody"})
	d.Enqueue(Request{Peer: "ws:here:1", Utterance: "somebody"})

	frames := waitSink(t, sink, 1)
	assert.Equal(t, "binary:AUDIO:somebody", frames[0])
}

func TestDispatcherSynthesisFailureContained(t *testing.T) {
	tts := &stubTTS{fail: true}
	sink := &recordSink{}
	d := NewDispatcher(tts, nil, func(string) (Sink, bool) { return sink, true })
	d.Start()
	defer d.Stop()

	d.Enqueue(Request{Peer: "ws:1:1", Utterance: "boom"})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sink.snapshot())

	// the loop is still alive and serves the next request
	tts.mu.Lock()
	tts.fail = false
	tts.mu.Unlock()
	d.Enqueue(Request{Peer: "ws:1:1", Utterance: "recovered"})
	waitSink(t, sink, 1)
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewDispatcher(&stubTTS{}, nil, func(string) (Sink, bool) { return nil, false })
	d.Start()
	d.Stop()
	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestCacheKeyedByEngineVoiceContent(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)

	cache.Put("openai", "alloy", "hello", []byte("a"))
	cache.Put("openai", "nova", "hello", []byte("b"))

	got, ok := cache.Get("openai", "alloy", "hello")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)

	got, ok = cache.Get("openai", "nova", "hello")
	require.True(t, ok)
	assert.Equal(t, []byte("b"), got)

	_, ok = cache.Get("openai", "alloy", "other words")
	assert.False(t, ok)
}
