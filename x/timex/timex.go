package timex

import (
	"context"
	"time"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock is the time source used by services that must be testable without
// real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) bool
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Sleep waits for d or ctx cancellation; it reports whether the full delay elapsed.
func (System) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Millis converts an integer millisecond setting to a Duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Seconds converts an integer second setting to a Duration.
func Seconds(s uint32) time.Duration { return time.Duration(s) * time.Second }
