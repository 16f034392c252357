package audio

import "math"

// GateTransition reports what the gate did with one frame.
type GateTransition int

const (
	GatePassed   GateTransition = iota // open and stays open
	GateSilenced                       // closed and stays closed
	GateClosing                        // tail faded to zero
	GateOpening                        // head faded in from zero
)

// NoiseGate silences frames whose RMS falls below a threshold. Transitions
// are faded over a fixed number of samples instead of hard-cut.
type NoiseGate struct {
	threshold   float64
	fadeSamples int
	open        bool
}

// NewNoiseGate builds a gate that starts open.
func NewNoiseGate(threshold float64, fadeSamples int) *NoiseGate {
	if fadeSamples < 1 {
		fadeSamples = 1
	}
	return &NoiseGate{threshold: threshold, fadeSamples: fadeSamples, open: true}
}

// Open reports the gate state after the last processed frame.
func (g *NoiseGate) Open() bool {
	return g.open
}

// RMS returns the root-mean-square amplitude of a frame.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Process gates one frame in place.
func (g *NoiseGate) Process(samples []int16) GateTransition {
	loud := RMS(samples) >= g.threshold

	switch {
	case loud && g.open:
		return GatePassed
	case !loud && !g.open:
		Zero(samples)
		return GateSilenced
	}

	n := len(samples)
	fade := g.fadeSamples
	if fade > n {
		fade = n
	}

	if !loud {
		// Closing: last sample of the frame lands exactly on zero.
		g.open = false
		start := n - fade
		for k := 0; k < fade; k++ {
			factor := 1 - float64(k+1)/float64(fade)
			samples[start+k] = int16(math.Round(float64(samples[start+k]) * factor))
		}
		return GateClosing
	}

	g.open = true
	for k := 0; k < fade; k++ {
		factor := float64(k) / float64(fade)
		samples[k] = int16(math.Round(float64(samples[k]) * factor))
	}
	return GateOpening
}
