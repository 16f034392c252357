package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSamples = 1764 // 40 ms at 44.1 kHz

func constantFrame(v int16) []int16 {
	f := make([]int16, frameSamples)
	for i := range f {
		f[i] = v
	}
	return f
}

func sineFrame(amplitude float64, phase *float64) []int16 {
	f := make([]int16, frameSamples)
	step := 2 * math.Pi * 440 / 44100
	for i := range f {
		f[i] = int16(amplitude * math.Sin(*phase))
		*phase += step
	}
	return f
}

func TestPCM16LE_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	b := EncodePCM16LE(nil, samples)
	require.Len(t, b, 12)
	assert.Equal(t, []byte{0xff, 0x7f}, b[6:8])
	assert.Equal(t, []byte{0x00, 0x80}, b[8:10])
	assert.Equal(t, samples, DecodePCM16LE(nil, b))

	// odd trailing byte is ignored
	assert.Len(t, DecodePCM16LE(nil, append(b, 0x01)), 6)
}

func TestHighPass_AlphaFromCutoff(t *testing.T) {
	hp := NewHighPass(100, 44100)
	rc := 1 / (2 * math.Pi * 100)
	assert.InDelta(t, rc/(rc+1.0/44100), hp.Alpha(), 1e-12)
	assert.InDelta(t, 0.986, hp.Alpha(), 0.001)
}

func TestHighPass_RemovesDC(t *testing.T) {
	hp := NewHighPass(100, 44100)
	var last []int16
	for i := 0; i < 10; i++ {
		last = constantFrame(10000)
		hp.Process(last)
	}
	for _, s := range last {
		assert.InDelta(t, 0, s, 1)
	}
}

func TestHighPass_StateCarriesAcrossFrames(t *testing.T) {
	whole := NewHighPass(100, 44100)
	split := NewHighPass(100, 44100)

	var phase float64
	a := sineFrame(8000, &phase)
	b := sineFrame(8000, &phase)
	joined := append(append([]int16{}, a...), b...)

	whole.Process(joined)
	split.Process(a)
	split.Process(b)
	assert.Equal(t, joined, append(a, b...))
}

func TestHighPass_Clamps(t *testing.T) {
	hp := NewHighPassAlpha(0.9)
	f := make([]int16, 201)
	for i := 0; i < 200; i++ {
		f[i] = -32768
	}
	f[200] = 32767 // full-scale step once the output has settled near zero
	hp.Process(f)
	assert.Equal(t, int16(-29491), f[0])
	assert.Equal(t, int16(32767), f[200])
}

func TestNoiseGate_LoudThenSilent(t *testing.T) {
	gate := NewNoiseGate(200, 64)
	var frames [][]int16
	for i := 0; i < 10; i++ {
		f := constantFrame(5000)
		frames = append(frames, f)
		assert.Equal(t, GatePassed, gate.Process(f))
	}
	for i := 0; i < 10; i++ {
		f := constantFrame(100) // RMS 100, below threshold
		frames = append(frames, f)
		tr := gate.Process(f)
		if i == 0 {
			assert.Equal(t, GateClosing, tr)
		} else {
			assert.Equal(t, GateSilenced, tr)
		}
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, constantFrame(5000), frames[i])
	}

	transition := frames[10]
	fadeStart := frameSamples - 64
	for i := 0; i < fadeStart; i++ {
		require.Equal(t, int16(100), transition[i])
	}
	prev := int16(100)
	for i := fadeStart; i < frameSamples; i++ {
		assert.LessOrEqual(t, transition[i], prev, "fade must be monotonic")
		assert.Greater(t, transition[i], int16(-1))
		prev = transition[i]
	}
	assert.Equal(t, int16(0), transition[frameSamples-1])
	// no abrupt cut: the first faded sample keeps most of the level
	assert.GreaterOrEqual(t, transition[fadeStart], int16(98))

	for _, f := range frames[11:] {
		assert.Equal(t, constantFrame(0), f)
	}
	assert.False(t, gate.Open())
}

func TestNoiseGate_Reopens(t *testing.T) {
	gate := NewNoiseGate(200, 64)
	gate.Process(constantFrame(0))
	require.False(t, gate.Open())

	f := constantFrame(6400)
	assert.Equal(t, GateOpening, gate.Process(f))
	assert.True(t, gate.Open())
	assert.Equal(t, int16(0), f[0])
	assert.Equal(t, int16(100), f[1])
	assert.Equal(t, int16(3200), f[32])
	assert.Equal(t, int16(6300), f[63])
	assert.Equal(t, int16(6400), f[64])
}

func TestNoiseGate_FadeLongerThanFrame(t *testing.T) {
	gate := NewNoiseGate(200, 64)
	f := []int16{1, 1, 1, 1}
	assert.Equal(t, GateClosing, gate.Process(f))
	assert.Equal(t, int16(0), f[3])
}

func TestMixer_FullScaleDoesNotWrap(t *testing.T) {
	m := NewMixer(frameSamples)
	out := make([]int16, frameSamples)

	n := m.Mix(out, [][]int16{constantFrame(32767), constantFrame(32767)})
	assert.Equal(t, 2, n)
	for _, s := range out {
		assert.Greater(t, s, int16(0))
		assert.LessOrEqual(t, s, int16(32767))
	}
	assert.Equal(t, int16(math.Tanh(2)*32767), out[0])

	m.Mix(out, [][]int16{constantFrame(-32768), constantFrame(-32768)})
	for _, s := range out {
		assert.Less(t, s, int16(0))
		assert.GreaterOrEqual(t, s, int16(-32768))
	}
}

func TestMixer_InRangeIsBitExact(t *testing.T) {
	m := NewMixer(frameSamples)
	out := make([]int16, frameSamples)

	var phase float64
	for tick := 0; tick < 3; tick++ {
		a := sineFrame(30000, &phase)
		n := m.Mix(out, [][]int16{a, constantFrame(0)})
		assert.Equal(t, 2, n)
		assert.Equal(t, a, out)

		n = m.Mix(out, [][]int16{a})
		assert.Equal(t, 1, n)
		assert.Equal(t, a, out)
	}
}

func TestMixer_SkipsWrongSizeAndEmitsSilence(t *testing.T) {
	m := NewMixer(frameSamples)
	out := constantFrame(42)

	n := m.Mix(out, [][]int16{make([]int16, 10)})
	assert.Zero(t, n)
	assert.Equal(t, constantFrame(0), out)

	n = m.Mix(out, nil)
	assert.Zero(t, n)
	assert.Equal(t, constantFrame(0), out)
}

func TestSoftClip(t *testing.T) {
	assert.Equal(t, int16(32767), SoftClip(32767))
	assert.Equal(t, int16(-32768), SoftClip(-32768))
	assert.Equal(t, int16(-5), SoftClip(-5))
	assert.Equal(t, int16(32767), SoftClip(1<<40))
	assert.Less(t, SoftClip(40000), int16(32767))
	assert.Greater(t, SoftClip(-(1 << 40)), int16(-32768))
}

func TestStreamQueues(t *testing.T) {
	q := NewStreamQueues(2)

	assert.True(t, q.Offer(1, []int16{1}))
	assert.True(t, q.Offer(1, []int16{2}))
	assert.False(t, q.Offer(1, []int16{3}), "full queue drops the newest frame")
	assert.True(t, q.Offer(2, []int16{9}))
	assert.Equal(t, 2, q.Senders())

	got := q.Poll(nil)
	assert.Equal(t, [][]int16{{1}, {9}}, got)

	got = q.Poll(got[:0])
	assert.Equal(t, [][]int16{{2}}, got)
	assert.Empty(t, q.Poll(nil))
	assert.Zero(t, q.Len(1))
}
