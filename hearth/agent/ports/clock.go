package agentports

import (
	"context"
	"time"
)

// TimerTask is an armed timer that can be disarmed before it fires.
// Disarm reports whether the task was still pending.
type TimerTask interface {
	Disarm() bool
}

// Clock abstracts wall time, sleeping and timer arming so that retry
// backoff and the scheduler's one-shot/sweep paths are testable without
// real waiting.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
	// ArmTimer schedules fire to run once after d.
	ArmTimer(d time.Duration, fire func()) TimerTask
	// ArmTicker schedules fire to run every interval until disarmed.
	ArmTicker(interval time.Duration, fire func()) TimerTask
}
