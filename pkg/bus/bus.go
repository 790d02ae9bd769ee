package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
)

// ErrBusClosed is returned when emitting on a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// Wildcard subscribes a handler to every message on the bus.
const Wildcard = "message"

type Handler func(Message)

// MessageBus is the in-process publish/subscribe bus the hub shares with
// the rest of the device stack. Emission is asynchronous through a single
// bounded queue and one dispatch goroutine, so handlers observe messages
// in emission order.
type MessageBus struct {
	queue  chan Message
	done   chan struct{}
	closed atomic.Bool

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = 100
	}
	mb := &MessageBus{
		queue:    make(chan Message, capacity),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}
	go mb.dispatch()
	return mb
}

// On registers a handler for the given message type. Use Wildcard to
// observe all traffic.
func (mb *MessageBus) On(msgType string, h Handler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[msgType] = append(mb.handlers[msgType], h)
}

// RemoveAll drops every handler registered for the given message type.
func (mb *MessageBus) RemoveAll(msgType string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.handlers, msgType)
}

// Emit queues a message for dispatch. When the queue is full the message
// is dropped and logged rather than blocking the caller.
func (mb *MessageBus) Emit(msg Message) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.queue <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	default:
		logger.WarnCF("bus", "Queue full, dropping message", map[string]any{"type": msg.Type})
		return nil
	}
}

func (mb *MessageBus) dispatch() {
	for {
		select {
		case msg := <-mb.queue:
			mb.deliver(msg)
		case <-mb.done:
			// drain what was queued before close
			for {
				select {
				case msg := <-mb.queue:
					mb.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (mb *MessageBus) deliver(msg Message) {
	mb.mu.RLock()
	targets := make([]Handler, 0, 4)
	targets = append(targets, mb.handlers[msg.Type]...)
	if msg.Type != Wildcard {
		targets = append(targets, mb.handlers[Wildcard]...)
	}
	mb.mu.RUnlock()

	for _, h := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorCF("bus", "Handler panic",
						map[string]any{"type": msg.Type, "panic": r})
				}
			}()
			h(msg)
		}()
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
