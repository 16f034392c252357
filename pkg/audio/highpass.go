package audio

import "math"

// HighPass is a single-pole IIR high-pass filter. Its history persists across
// frames so consecutive buffers are filtered as one continuous signal.
type HighPass struct {
	alpha   float64
	prevIn  float64
	prevOut float64
}

// NewHighPass builds a filter with the given cutoff for a sample rate.
// At 100 Hz and 44.1 kHz alpha is about 0.986.
func NewHighPass(cutoffHz float64, sampleRate int) *HighPass {
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float64(sampleRate)
	return &HighPass{alpha: rc / (rc + dt)}
}

// NewHighPassAlpha builds a filter from a raw smoothing coefficient.
func NewHighPassAlpha(alpha float64) *HighPass {
	return &HighPass{alpha: alpha}
}

// Alpha returns the filter coefficient.
func (h *HighPass) Alpha() float64 {
	return h.alpha
}

// Process filters samples in place.
func (h *HighPass) Process(samples []int16) {
	for i, s := range samples {
		x := float64(s)
		y := h.alpha * (h.prevOut + x - h.prevIn)
		h.prevIn = x
		h.prevOut = y
		samples[i] = clamp16(int64(math.Round(y)))
	}
}

// Reset clears the filter history.
func (h *HighPass) Reset() {
	h.prevIn = 0
	h.prevOut = 0
}
