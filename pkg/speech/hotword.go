package speech

import "sync/atomic"

// HotwordEngine consumes a rolling audio stream and flags wake-phrase
// detections. Feed is called once per frame; Detected is polled by the
// segmenter after each Feed. Reset arms the engine for the next detection.
type HotwordEngine interface {
	Feed(frame []byte)
	Detected() bool
	Reset()
	Close()
}

// EnergyHotword approximates wake detection by waiting for a burst of
// consecutive high-energy frames. It stands in where no dedicated wake-word
// model is deployed; clients that do on-device wake detection should run
// without hotword gating instead.
type EnergyHotword struct {
	vad    Classifier
	needed int

	run   int
	found atomic.Bool
}

// NewEnergyHotword triggers after `frames` consecutive speech frames.
func NewEnergyHotword(vad Classifier, frames int) *EnergyHotword {
	if frames <= 0 {
		frames = 10
	}
	return &EnergyHotword{vad: vad, needed: frames}
}

func (h *EnergyHotword) Feed(frame []byte) {
	if h.found.Load() {
		return
	}
	speech, err := h.vad.IsSpeech(frame)
	if err != nil || !speech {
		h.run = 0
		return
	}
	h.run++
	if h.run >= h.needed {
		h.found.Store(true)
	}
}

func (h *EnergyHotword) Detected() bool { return h.found.Load() }

func (h *EnergyHotword) Reset() {
	h.run = 0
	h.found.Store(false)
}

func (h *EnergyHotword) Close() {}
