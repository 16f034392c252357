package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("redis down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Unix(1000, 0)}
	cb := New(cfg)
	cb.now = clk.now
	cb.changedAt = clk.t
	return cb, clk
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Second})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second, MaxRequestsHalfOpen: 1})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clk.advance(time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clk.advance(time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(500 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrOpen)
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb, clk := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second, MaxRequestsHalfOpen: 1})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clk.advance(time.Second)

	err := cb.Execute(ctx, func() error {
		// a second caller while the probe is in flight
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb, clk := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})
	var seen []string
	cb.OnStateChange(func(from, to State) {
		seen = append(seen, from.String()+"->"+to.String())
	})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clk.advance(time.Second)
	cb.Execute(ctx, succeed)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, seen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	cb.Execute(context.Background(), fail)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}
