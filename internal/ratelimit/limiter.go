package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/onurcolak/followup-engine/pkg/logger"
)

// Store keeps one last-sent timestamp per subject. Reserve must be atomic:
// of two concurrent callers inside the same window only one may win.
type Store interface {
	Reserve(ctx context.Context, subject string, now time.Time, window time.Duration) (reserved bool, lastSent time.Time, err error)
	Release(ctx context.Context, subject string) error
}

type Decision struct {
	Allowed          bool          `json:"allowed"`
	Remaining        time.Duration `json:"-"`
	RemainingSeconds int           `json:"remainingSeconds,omitempty"`
}

// Limiter guards operator-initiated actions with a fixed cool-down.
type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// CheckAndRecord runs send only when subject has no send recorded within
// window. A failed send releases the reservation so the operator can retry.
func (l *Limiter) CheckAndRecord(
	ctx context.Context,
	subject string,
	now time.Time,
	window time.Duration,
	send func(ctx context.Context) error,
) (Decision, error) {
	reserved, lastSent, err := l.store.Reserve(ctx, subject, now, window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check cooldown for %s: %w", subject, err)
	}

	if !reserved {
		remaining := Remaining(window, now.Sub(lastSent))
		return Decision{Allowed: false, Remaining: remaining, RemainingSeconds: CeilSeconds(remaining)}, nil
	}

	if err := send(ctx); err != nil {
		if relErr := l.store.Release(context.WithoutCancel(ctx), subject); relErr != nil {
			logger.Warnf("Failed to release cooldown for %s: %v", subject, relErr)
		}
		return Decision{Allowed: true}, err
	}

	return Decision{Allowed: true}, nil
}

// Remaining is window minus elapsed, never below zero.
func Remaining(window, elapsed time.Duration) time.Duration {
	if elapsed < 0 {
		elapsed = 0
	}
	if r := window - elapsed; r > 0 {
		return r
	}
	return 0
}

// CeilSeconds rounds up to whole seconds with a floor of one, so a blocked
// caller is never told to wait zero seconds.
func CeilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
