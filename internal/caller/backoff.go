package caller

import (
	"context"
	"math"
	"time"
)

// Backoff computes exponential delays between attempts: Unit * Base^i.
type Backoff struct {
	Base float64
	Unit time.Duration
}

// DefaultBackoff doubles from one second.
var DefaultBackoff = Backoff{Base: 2, Unit: time.Second}

// Delay returns the wait that follows failed attempt i (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(b.Unit) * math.Pow(b.Base, float64(attempt)))
}

// SleepFunc blocks for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer-backed SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
