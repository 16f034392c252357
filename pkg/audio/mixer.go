package audio

import "math"

// Mixer sums equally sized frames from several senders into one output
// frame. The accumulator is wider than 16 bits so sums never wrap.
type Mixer struct {
	samples int
	acc     []int64
}

// NewMixer builds a mixer for frames of the given sample count.
func NewMixer(samplesPerFrame int) *Mixer {
	return &Mixer{samples: samplesPerFrame, acc: make([]int64, samplesPerFrame)}
}

// FrameSamples returns the expected frame length.
func (m *Mixer) FrameSamples() int {
	return m.samples
}

// Mix writes the sum of frames into out and reports how many frames
// contributed. Frames of the wrong length are skipped. When nothing
// contributed out is silence.
func (m *Mixer) Mix(out []int16, frames [][]int16) int {
	for i := range m.acc {
		m.acc[i] = 0
	}
	used := 0
	for _, f := range frames {
		if len(f) != m.samples {
			continue
		}
		for i, s := range f {
			m.acc[i] += int64(s)
		}
		used++
	}
	for i := 0; i < m.samples && i < len(out); i++ {
		out[i] = SoftClip(m.acc[i])
	}
	return used
}

// SoftClip returns v unchanged when it fits in 16 bits. Out-of-range sums
// are mapped through 32767*tanh(v/32767), which never leaves the 16-bit range.
func SoftClip(v int64) int16 {
	if v >= math.MinInt16 && v <= math.MaxInt16 {
		return int16(v)
	}
	return int16(math.Tanh(float64(v)/math.MaxInt16) * math.MaxInt16)
}
