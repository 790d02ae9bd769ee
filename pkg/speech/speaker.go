package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// Sink is where synthesized audio goes: a client connection able to carry
// binary audio and text payload frames.
type Sink interface {
	Send(payload []byte) error
	SendBinary(data []byte) error
}

// Request is one utterance to synthesize for one client. Payload, when
// set, is a text frame delivered after the audio so the client can match
// the speech to its originating message.
type Request struct {
	Peer      string
	Utterance string
	Payload   []byte
}

const (
	dispatchQueueSize = 64
	dispatchPoll      = 500 * time.Millisecond
	synthesisTimeout  = 30 * time.Second
)

// Dispatcher serializes text-to-speech across all clients on one shared
// queue. One synthesis runs at a time; results are cached by content so
// repeated utterances skip the engine entirely.
type Dispatcher struct {
	tts     Synthesizer
	cache   *Cache
	resolve func(peer string) (Sink, bool)

	queue    chan Request
	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher builds the shared dispatcher. cache may be nil to disable
// caching. resolve maps a peer identity to its live connection; a miss
// means the client left while its request was queued.
func NewDispatcher(tts Synthesizer, cache *Cache, resolve func(peer string) (Sink, bool)) *Dispatcher {
	return &Dispatcher{
		tts:     tts,
		cache:   cache,
		resolve: resolve,
		queue:   make(chan Request, dispatchQueueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue queues one synthesis request. A full queue drops the request;
// speech that arrives half a minute late is worse than no speech.
func (d *Dispatcher) Enqueue(req Request) {
	select {
	case d.queue <- req:
	default:
		logger.WarnCF("speech", "Synthesis queue full, dropping request",
			map[string]any{"peer": req.Peer})
	}
}

func (d *Dispatcher) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	logger.InfoC("speech", "Starting synthesis dispatcher")
	go d.run()
}

// Stop requests cooperative termination, observed within one poll
// interval. Idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.running.Store(false)
	})
}

// Done closes when the dispatch loop has exited.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) run() {
	defer close(d.done)
	timer := time.NewTimer(dispatchPoll)
	defer timer.Stop()

	for d.running.Load() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(dispatchPoll)

		select {
		case req := <-d.queue:
			d.serve(req)
		case <-timer.C:
		}
	}
}

// serve synthesizes one request and streams it down. Every failure is
// contained here; the loop never dies over one bad utterance.
func (d *Dispatcher) serve(req Request) {
	audio, err := d.audioFor(req.Utterance)
	if err != nil {
		logger.ErrorCF("speech", "Synthesis failed",
			map[string]any{"peer": req.Peer, "error": err.Error()})
		return
	}

	sink, ok := d.resolve(req.Peer)
	if !ok {
		logger.WarnCF("speech", "Client left before synthesis finished",
			map[string]any{"peer": req.Peer})
		return
	}

	if err := sink.SendBinary(audio); err != nil {
		logger.WarnCF("speech", "Audio send failed",
			map[string]any{"peer": req.Peer, "error": err.Error()})
		return
	}
	if len(req.Payload) > 0 {
		if err := sink.Send(req.Payload); err != nil {
			logger.WarnCF("speech", "Payload send failed",
				map[string]any{"peer": req.Peer, "error": err.Error()})
		}
	}
	logger.InfoCF("speech", "Delivered synthesized speech",
		map[string]any{"peer": req.Peer, "bytes": len(audio)})
}

func (d *Dispatcher) audioFor(utterance string) ([]byte, error) {
	engine, voice := d.tts.Engine(), d.tts.Voice()
	if d.cache != nil {
		if audio, ok := d.cache.Get(engine, voice, utterance); ok {
			return audio, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()
	audio, err := d.tts.Synthesize(ctx, utterance)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Put(engine, voice, utterance, audio)
	}
	return audio, nil
}
