package application

import (
	"context"
	"time"
)

// Pacer imposes a delay between consecutive calls to a third-party service.
// The external services rate-limit aggressively; one fixed pause per call is
// the fairness policy they ask for.
type Pacer interface {
	Pace(ctx context.Context) error
}

// FixedDelay pauses for a constant duration, interruptible by the context.
type FixedDelay struct {
	D time.Duration
}

func (p FixedDelay) Pace(ctx context.Context) error {
	if p.D <= 0 {
		return nil
	}
	t := time.NewTimer(p.D)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NopPacer skips pacing entirely. Used in tests.
type NopPacer struct{}

func (NopPacer) Pace(context.Context) error { return nil }
