package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

const (
	// frames are 20 ms of audio; the pre-roll window holds 600 ms
	frameDivisor  = 50
	preRollFrames = 30

	// triggerRatio is the speech (or silence) fraction that flips the
	// segmenter state
	triggerRatio = 0.75

	// queuePoll bounds the wait on the audio queue so the liveness check
	// and stop flag are observed promptly
	queuePoll = time.Second

	sttTimeout = 30 * time.Second
)

type segState int

const (
	segIdle segState = iota
	segActive
)

type segEvent int

const (
	segNone segEvent = iota
	segTriggered
	segFinished
)

// segmenter is the voice-activity state machine. It is pure bookkeeping
// over classified frames so it can be unit tested with a stub classifier
// and no real audio.
type segmenter struct {
	state segState
	ring  *ring
}

func newSegmenter() *segmenter {
	return &segmenter{ring: newRing(preRollFrames)}
}

// feed advances the state machine by one classified frame. On segTriggered
// the returned slice holds the buffered lead-in frames, oldest first, with
// the triggering frame last.
func (s *segmenter) feed(frame []byte, isSpeech bool) (segEvent, [][]byte) {
	s.ring.push(frame, isSpeech)

	switch s.state {
	case segIdle:
		if s.ring.full() && s.ring.speechRatio() > triggerRatio {
			preroll := s.ring.ordered()
			s.ring.reset()
			s.state = segActive
			return segTriggered, preroll
		}
	case segActive:
		if s.ring.full() && 1-s.ring.speechRatio() > triggerRatio {
			s.ring.reset()
			s.state = segIdle
			return segFinished, nil
		}
	}
	return segNone, nil
}

func (s *segmenter) active() bool { return s.state == segActive }

// ListenerOptions wires one client's segmenter to its collaborators.
type ListenerOptions struct {
	SampleRate int
	Classifier Classifier
	STT        StreamRecognizer
	Hotword    HotwordEngine // nil disables hotword gating

	// Alive reports whether the owning session is still registered. The
	// loop exits once it returns false.
	Alive func() bool
	// OnUtterance receives each non-empty recognized transcript.
	OnUtterance func(text string)
	// Emit publishes listener lifecycle events on the bus. Optional.
	Emit func(event string)
}

// Listener is the per-client audio segmenter task. It pulls raw bytes from
// the session's audio queue, slices them into fixed frames, applies
// optional hotword gating, then voice-activity segmentation, feeding the
// STT collaborator and reporting transcripts upward.
type Listener struct {
	peer      string
	queue     chan []byte
	frameSize int
	opts      ListenerOptions

	seg     *segmenter
	pending []byte
	gated   bool

	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func NewListener(peer string, queue chan []byte, opts ListenerOptions) *Listener {
	return &Listener{
		peer:      peer,
		queue:     queue,
		frameSize: opts.SampleRate / frameDivisor,
		opts:      opts,
		seg:       newSegmenter(),
		gated:     opts.Hotword != nil,
		done:      make(chan struct{}),
	}
}

// Start launches the segmenter loop.
func (l *Listener) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	logger.InfoCF("speech", "Starting audio listener", map[string]any{"peer": l.peer})
	if l.gated {
		l.emit("hive.hotword.listening")
	}
	go l.run()
}

// Stop requests cooperative termination. Safe to call concurrently and
// more than once; the loop exits within one queue-poll interval.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
	})
}

// Done closes when the loop has fully exited and cleaned up.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) run() {
	defer close(l.done)
	defer l.cleanup()

	timer := time.NewTimer(queuePoll)
	defer timer.Stop()

	for l.live() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(queuePoll)

		select {
		case chunk, ok := <-l.queue:
			if !ok {
				return
			}
			l.ingest(chunk)
		case <-timer.C:
			// timeout is the liveness checkpoint
		}
	}
}

func (l *Listener) live() bool {
	if !l.running.Load() {
		return false
	}
	if l.opts.Alive != nil && !l.opts.Alive() {
		logger.DebugC("speech", "session gone, listener exiting")
		return false
	}
	return true
}

// ingest slices arrived bytes into fixed frames. A trailing partial frame
// waits for the next chunk.
func (l *Listener) ingest(chunk []byte) {
	l.pending = append(l.pending, chunk...)
	for len(l.pending) >= l.frameSize {
		frame := make([]byte, l.frameSize)
		copy(frame, l.pending[:l.frameSize])
		l.pending = l.pending[l.frameSize:]
		l.handleFrame(frame)
	}
}

func (l *Listener) handleFrame(frame []byte) {
	if l.gated {
		l.opts.Hotword.Feed(frame)
		if !l.opts.Hotword.Detected() {
			return
		}
		logger.InfoCF("speech", "Hotword detected", map[string]any{"peer": l.peer})
		l.emit("hive.hotword.detected")
		l.gated = false
		return
	}

	// classification failures count as silence, never as errors
	isSpeech := false
	if l.opts.Classifier != nil {
		if speech, err := l.opts.Classifier.IsSpeech(frame); err == nil {
			isSpeech = speech
		} else {
			logger.DebugC("speech", "classifier error, treating frame as silence")
		}
	}

	if l.seg.active() {
		if err := l.opts.STT.StreamData(frame); err != nil {
			logger.WarnCF("speech", "STT stream write failed",
				map[string]any{"peer": l.peer, "error": err.Error()})
		}
	}

	event, preroll := l.seg.feed(frame, isSpeech)
	switch event {
	case segTriggered:
		l.emit("recognizer_loop:record_begin")
		if err := l.opts.STT.StreamStart(); err != nil {
			logger.WarnCF("speech", "STT stream open failed",
				map[string]any{"peer": l.peer, "error": err.Error()})
		}
		for _, f := range preroll {
			if err := l.opts.STT.StreamData(f); err != nil {
				break
			}
		}
	case segFinished:
		l.emit("recognizer_loop:record_end")
		l.finalize()
	}
}

// finalize closes the STT stream and forwards the transcript. Afterward
// hotword gating, when configured, re-arms for the next wake.
func (l *Listener) finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), sttTimeout)
	defer cancel()

	text, err := l.opts.STT.StreamStop(ctx)
	if err != nil {
		logger.ErrorCF("speech", "Recognition failed",
			map[string]any{"peer": l.peer, "error": err.Error()})
		text = ""
	}
	if text != "" {
		logger.InfoCF("speech", "Recognized utterance",
			map[string]any{"peer": l.peer, "utterance": text})
		if l.opts.OnUtterance != nil {
			l.opts.OnUtterance(text)
		}
	}

	if l.opts.Hotword != nil {
		l.opts.Hotword.Reset()
		l.gated = true
		l.emit("hive.hotword.listening")
	}
}

// cleanup runs once on loop exit: no orphaned hotword engine or dangling
// STT stream may survive the session.
func (l *Listener) cleanup() {
	l.running.Store(false)
	if l.seg.active() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = l.opts.STT.StreamStop(ctx)
		cancel()
	}
	if l.opts.Hotword != nil {
		l.opts.Hotword.Close()
	}
	logger.InfoCF("speech", "Audio listener stopped", map[string]any{"peer": l.peer})
}

func (l *Listener) emit(event string) {
	if l.opts.Emit != nil {
		l.opts.Emit(event)
	}
}
