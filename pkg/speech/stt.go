package speech

import (
	"context"
	"sync"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Recognizer is the single-shot speech-to-text contract: one bounded audio
// window in, one transcript out.
type Recognizer interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

// StreamRecognizer is the streaming contract. StreamStop returns the final
// transcript for everything fed since StreamStart. Implementations must
// tolerate StreamStop without a preceding StreamStart (returning an empty
// transcript) so the segmenter's cleanup path is unconditional.
type StreamRecognizer interface {
	StreamStart() error
	StreamData(frame []byte) error
	StreamStop(ctx context.Context) (string, error)
}

// StreamCapable is implemented by recognition engines that can open
// independent streams. Each client gets its own stream; a single shared
// stream would interleave concurrent clients' audio.
type StreamCapable interface {
	NewStream() StreamRecognizer
}

// StreamFactory returns the per-client stream constructor for the
// configured recognizer. In streaming mode an engine without native
// stream support degrades to the buffering adapter, announced once at
// startup rather than silently.
func StreamFactory(rec Recognizer, streaming bool) func() StreamRecognizer {
	if capable, ok := rec.(StreamCapable); ok && streaming {
		return capable.NewStream
	}
	if streaming {
		logger.WarnC("speech", "stt engine has no native stream support, utterances will be buffered")
	}
	return func() StreamRecognizer { return NewStreamAdapter(rec) }
}

// StreamAdapter turns a single-shot Recognizer into a StreamRecognizer by
// accumulating fed frames and recognizing the whole window at stream end.
// This is the buffered deployment mode.
type StreamAdapter struct {
	rec Recognizer

	mu     sync.Mutex
	buf    []byte
	active bool
}

func NewStreamAdapter(rec Recognizer) *StreamAdapter {
	return &StreamAdapter{rec: rec}
}

func (a *StreamAdapter) StreamStart() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = a.buf[:0]
	a.active = true
	return nil
}

func (a *StreamAdapter) StreamData(frame []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	a.buf = append(a.buf, frame...)
	return nil
}

func (a *StreamAdapter) StreamStop(ctx context.Context) (string, error) {
	a.mu.Lock()
	audio := make([]byte, len(a.buf))
	copy(audio, a.buf)
	wasActive := a.active
	a.buf = a.buf[:0]
	a.active = false
	a.mu.Unlock()

	if !wasActive || len(audio) == 0 {
		return "", nil
	}
	return a.rec.Recognize(ctx, audio)
}
