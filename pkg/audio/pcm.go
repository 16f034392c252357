// Package audio holds the PCM16LE helpers and the DSP stages applied to call
// audio: a high-pass filter and a noise gate on capture, a mixer with soft
// clipping on playback.
package audio

import "encoding/binary"

// DecodePCM16LE converts little-endian 16-bit PCM bytes into samples. dst is
// reused when large enough. A trailing odd byte is ignored.
func DecodePCM16LE(dst []int16, src []byte) []int16 {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return dst
}

// EncodePCM16LE converts samples into little-endian bytes, reusing dst when
// large enough.
func EncodePCM16LE(dst []byte, src []int16) []byte {
	n := len(src) * 2
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return dst
}

// Zero clears a sample buffer.
func Zero(samples []int16) {
	for i := range samples {
		samples[i] = 0
	}
}

func clamp16(v int64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
