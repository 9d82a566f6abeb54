package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between consecutive operations.
type Pacer interface {
	Wait(ctx context.Context) error
	Stop()
}

// Limiter is a Pacer built on a token bucket with burst 1, so the first Wait
// returns immediately and each later Wait returns at least interval after the
// previous one. Optional jitter adds a random extra delay of up to
// jitter*interval. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
}

var _ Pacer = (*Limiter)(nil)

// NewLimiter creates a limiter that spaces operations by interval.
// If interval is <= 0, the limiter does not block.
func NewLimiter(interval time.Duration, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	if interval <= 0 {
		return &Limiter{}
	}

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		jitter:   jitter,
	}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next operation may start, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return ctx.Err()
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	if l.jitter > 0 {
		extra := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
		if extra > 0 {
			t := time.NewTimer(extra)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Stop is a no-op kept so Limiter satisfies Pacer; the token bucket holds no
// timers between calls.
func (l *Limiter) Stop() {}
