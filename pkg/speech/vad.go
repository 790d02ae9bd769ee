package speech

import (
	"encoding/binary"
	"math"
)

// Classifier labels one fixed-size audio frame as speech or non-speech.
// Errors are advisory: the segmenter treats a failed classification as
// non-speech and keeps running.
type Classifier interface {
	IsSpeech(frame []byte) (bool, error)
}

// EnergyVAD classifies frames by RMS energy over 16-bit little-endian PCM
// samples. It is deliberately simple; swap in a model-backed Classifier for
// noisy environments.
type EnergyVAD struct {
	// Threshold is the RMS amplitude (0..32767) above which a frame counts
	// as speech.
	Threshold float64
}

// DefaultVADThreshold works for typical close-mic satellite hardware.
const DefaultVADThreshold = 500

func NewEnergyVAD(threshold float64) *EnergyVAD {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	return &EnergyVAD{Threshold: threshold}
}

func (v *EnergyVAD) IsSpeech(frame []byte) (bool, error) {
	if len(frame) < 2 {
		return false, nil
	}
	var sum float64
	samples := len(frame) / 2
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(samples))
	return rms >= v.Threshold, nil
}
