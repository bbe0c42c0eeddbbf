package adapters

import (
	"context"
	"sync"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

// SystemClock implements the Clock port on the runtime clock.
type SystemClock struct{}

var _ ports.Clock = SystemClock{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type systemTimer struct {
	timer *time.Timer
}

func (t *systemTimer) Disarm() bool { return t.timer.Stop() }

// ArmTimer schedules fire to run once after d on its own goroutine.
func (SystemClock) ArmTimer(d time.Duration, fire func()) ports.TimerTask {
	return &systemTimer{timer: time.AfterFunc(d, fire)}
}

type systemTicker struct {
	once sync.Once
	stop chan struct{}
}

func (t *systemTicker) Disarm() bool {
	disarmed := false
	t.once.Do(func() {
		close(t.stop)
		disarmed = true
	})
	return disarmed
}

// ArmTicker schedules fire to run every interval until disarmed.
func (SystemClock) ArmTicker(interval time.Duration, fire func()) ports.TimerTask {
	task := &systemTicker{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fire()
			case <-task.stop:
				return
			}
		}
	}()
	return task
}
