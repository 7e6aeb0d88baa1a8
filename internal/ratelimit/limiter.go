// Package ratelimit spaces out calls to a rate-limited upstream.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobrater/internal/utils"
)

// Limiter enforces a minimum interval between the starts of consecutive calls.
// It is shared by every caller in the process; concurrent callers queue on it.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

func New(interval time.Duration, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		interval: interval,
		now:      time.Now,
		wait:     utils.WaitFor,
		logger:   logger,
	}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until a call may start and records its start time. The first call
// never waits. A cancelled context aborts the wait without recording a call.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		elapsed := l.now().Sub(l.last)
		if remaining := l.interval - elapsed; remaining > 0 {
			l.logger.Info("waiting for next request", zap.Duration("remaining", remaining))
			if err := l.wait(ctx, remaining); err != nil {
				return err
			}
		}
	}

	l.last = l.now()
	return nil
}
