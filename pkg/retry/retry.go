package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config describes an exponential backoff.
type Config struct {
	MaxAttempts  int           // total attempts including the first; <= 0 means until ctx ends
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay randomised in both directions, 0..1
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx ends. The last error is returned wrapped.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Delay(cfg, attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err
	}
	return fmt.Errorf("gave up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Delay returns the backoff before retry number n (0-based).
func Delay(cfg Config, n int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < n; i++ {
		d *= cfg.Multiplier
		if cfg.MaxDelay > 0 && d >= float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
