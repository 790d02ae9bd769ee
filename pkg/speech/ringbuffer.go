// Package speech hosts the per-client audio segmentation pipeline and the
// shared synthesis dispatcher: voice-activity segmentation with optional
// hotword gating on the inbound side, cached text-to-speech on the way out.
package speech

// ring is the fixed-capacity pre-roll window of (frame, is-speech) pairs.
// When speech onset triggers, its contents become the lead-in audio of the
// utterance. Overwrites oldest first; memory use is bounded by capacity.
type ring struct {
	frames [][]byte
	speech []bool
	next   int
	count  int
}

func newRing(capacity int) *ring {
	return &ring{
		frames: make([][]byte, capacity),
		speech: make([]bool, capacity),
	}
}

func (r *ring) push(frame []byte, isSpeech bool) {
	r.frames[r.next] = frame
	r.speech[r.next] = isSpeech
	r.next = (r.next + 1) % len(r.frames)
	if r.count < len(r.frames) {
		r.count++
	}
}

func (r *ring) len() int { return r.count }

func (r *ring) full() bool { return r.count == len(r.frames) }

// speechRatio is the fraction of buffered frames classified as speech.
func (r *ring) speechRatio() float64 {
	if r.count == 0 {
		return 0
	}
	voiced := 0
	for i := 0; i < r.count; i++ {
		idx := r.index(i)
		if r.speech[idx] {
			voiced++
		}
	}
	return float64(voiced) / float64(r.count)
}

// ordered returns the buffered frames oldest first.
func (r *ring) ordered() [][]byte {
	out := make([][]byte, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.frames[r.index(i)])
	}
	return out
}

func (r *ring) reset() {
	r.next = 0
	r.count = 0
}

// index maps a logical position (0 = oldest) to a slot.
func (r *ring) index(logical int) int {
	start := r.next - r.count
	if start < 0 {
		start += len(r.frames)
	}
	return (start + logical) % len(r.frames)
}
