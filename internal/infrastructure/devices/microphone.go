package devices

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"nexo/internal/core/domain"
)

// ToneMicrophone synthesises a sine tone and paces reads in real time, so a
// caller reading one frame at a time gets frames at the capture cadence.
// Amplitude 0 gives a silent microphone.
type ToneMicrophone struct {
	frequency float64
	amplitude float64

	mu       sync.Mutex
	rate     int
	phase    float64
	next     time.Time
	open     bool
	now      func() time.Time
	sleepFor func(ctx context.Context, d time.Duration) error
}

// NewToneMicrophone builds a tone source. amplitude is a fraction of full
// scale.
func NewToneMicrophone(frequency, amplitude float64) *ToneMicrophone {
	return &ToneMicrophone{
		frequency: frequency,
		amplitude: amplitude,
		now:       time.Now,
		sleepFor:  sleep,
	}
}

func (m *ToneMicrophone) Open(format domain.AudioFormat) error {
	if format.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d: %w", format.SampleRate, domain.ErrDeviceUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = format.SampleRate
	m.phase = 0
	m.next = time.Time{}
	m.open = true
	return nil
}

// Read fills buf with the next len(buf) samples, waiting until the moment
// those samples would have been captured.
func (m *ToneMicrophone) Read(ctx context.Context, buf []int16) (int, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return 0, fmt.Errorf("microphone not open: %w", domain.ErrDeviceUnavailable)
	}
	now := m.now()
	if m.next.IsZero() {
		m.next = now
	}
	m.next = m.next.Add(time.Duration(len(buf)) * time.Second / time.Duration(m.rate))
	wait := m.next.Sub(now)

	step := 2 * math.Pi * m.frequency / float64(m.rate)
	amp := m.amplitude * math.MaxInt16
	for i := range buf {
		buf[i] = int16(math.Sin(m.phase) * amp)
		m.phase += step
		if m.phase >= 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}
	m.mu.Unlock()

	if wait > 0 {
		if err := m.sleepFor(ctx, wait); err != nil {
			return 0, err
		}
	}
	return len(buf), nil
}

func (m *ToneMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
