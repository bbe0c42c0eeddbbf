package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock drives timers deterministically. Advance moves the wall clock
// to the target, firing every due task synchronously in deadline order;
// one-shot tasks fire once, tickers re-arm.
type testClock struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*clockTask
}

type clockTask struct {
	clock    *testClock
	deadline time.Time
	interval time.Duration
	fire     func()
	disarmed bool
}

func (t *clockTask) Disarm() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.disarmed {
		return false
	}
	t.disarmed = true
	return true
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *testClock) ArmTimer(d time.Duration, fire func()) ports.TimerTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &clockTask{clock: c, deadline: c.now.Add(d), fire: fire}
	c.tasks = append(c.tasks, task)
	return task
}

func (c *testClock) ArmTicker(interval time.Duration, fire func()) ports.TimerTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &clockTask{clock: c, deadline: c.now.Add(interval), interval: interval, fire: fire}
	c.tasks = append(c.tasks, task)
	return task
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *clockTask
		for _, task := range c.tasks {
			if task.disarmed || task.deadline.After(target) {
				continue
			}
			if next == nil || task.deadline.Before(next.deadline) {
				next = task
			}
		}
		if next == nil {
			break
		}
		c.now = next.deadline
		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			next.disarmed = true
		}
		fire := next.fire
		c.mu.Unlock()
		fire()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type memSettings struct {
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memSettings) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

type replayCall struct {
	command   string
	createdAt time.Time
}

type stubRunner struct {
	calls  []replayCall
	answer string
	ok     bool
	panics bool
}

func (r *stubRunner) RunScheduled(_ context.Context, command string, createdAt time.Time) (string, bool) {
	r.calls = append(r.calls, replayCall{command: command, createdAt: createdAt})
	if r.panics {
		panic("replay blew up")
	}
	return r.answer, r.ok
}

type recordingSink struct {
	completions []ports.Completion
}

func (s *recordingSink) Notify(_ context.Context, c ports.Completion) {
	s.completions = append(s.completions, c)
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (nopTracer) Event(context.Context, string, map[string]any) {}

func newTestScheduler(t *testing.T, mutate func(*Config)) (*Scheduler, *testClock, *stubRunner, *recordingSink, *Store) {
	t.Helper()
	clock := newTestClock(time.Date(2026, time.February, 8, 21, 0, 0, 0, time.UTC))
	store := NewStore(newMemSettings())
	runner := &stubRunner{answer: "done", ok: true}
	sink := &recordingSink{}
	cfg := DefaultConfig(time.UTC)
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewScheduler(cfg, store, clock, sink, nopTracer{}, zerolog.New(zerolog.Nop()))
	s.Bind(runner)
	return s, clock, runner, sink, store
}

func TestScheduleResolvesLocalTimeToUTC(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	clock := newTestClock(time.Date(2026, time.February, 8, 21, 0, 0, 0, cet))
	store := NewStore(newMemSettings())
	s := NewScheduler(DefaultConfig(cet), store, clock, &recordingSink{}, nopTracer{}, zerolog.New(zerolog.Nop()))
	s.Bind(&stubRunner{ok: true})

	cmd, err := s.Schedule(context.Background(), "start the dishwasher", "2026-02-08T22:00:00", "dishwasher")
	require.NoError(t, err)

	assert.Equal(t, "2026-02-08T21:00:00Z", cmd.ExecuteAt.Format(time.RFC3339))
	assert.Equal(t, "2026-02-08T20:00:00Z", cmd.CreatedAt.Format(time.RFC3339))
	assert.Equal(t, 60, cmd.DelayMinutes)
	assert.Equal(t, StatusPending, cmd.Status)
	assert.NotEmpty(t, cmd.ID)
}

func TestScheduleAcceptsExplicitOffsets(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, nil)

	cmd, err := s.Schedule(context.Background(), "preheat the oven", "2026-02-09T10:30:00+01:00", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-09T09:30:00Z", cmd.ExecuteAt.Format(time.RFC3339))
}

func TestScheduleRejectsPastTimes(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, nil)

	_, err := s.Schedule(context.Background(), "too late", "2026-02-08T20:00:00", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.InvalidSchedule))

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduleRejectsBeyondHorizon(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, nil)

	_, err := s.Schedule(context.Background(), "too far", "2027-03-01T21:00:00", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.InvalidSchedule))

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduleRejectsUnparseableTimes(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, nil)

	_, err := s.Schedule(context.Background(), "vague", "tomorrow evening", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.InvalidSchedule))
}

func TestScheduleWithinGraceStillRuns(t *testing.T) {
	s, clock, runner, _, _ := newTestScheduler(t, nil)

	_, err := s.Schedule(context.Background(), "just missed", "2026-02-08T20:59:30", "")
	require.NoError(t, err)

	clock.Advance(0)
	assert.Len(t, runner.calls, 1)
}

func TestTimerPathExecutesAndRemoves(t *testing.T) {
	s, clock, runner, sink, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	cmd, err := s.Schedule(ctx, "turn off the porch light", "2026-02-08T21:05:00", "porch")
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	assert.Empty(t, runner.calls)

	clock.Advance(time.Minute)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "turn off the porch light", runner.calls[0].command)
	assert.Equal(t, "2026-02-08T21:00:00Z", runner.calls[0].createdAt.Format(time.RFC3339))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.Len(t, sink.completions, 1)
	assert.Equal(t, cmd.ID, sink.completions[0].ScheduleID)
	assert.Equal(t, "turn off the porch light", sink.completions[0].Command)
	assert.True(t, sink.completions[0].Success)
	assert.Equal(t, "done", sink.completions[0].Answer)
}

func TestDistantCommandFiresViaSweep(t *testing.T) {
	s, clock, runner, sink, _ := newTestScheduler(t, nil)

	_, err := s.Schedule(context.Background(), "water the plants", "2026-02-10T09:00:00", "")
	require.NoError(t, err)

	clock.Advance(35 * time.Hour)
	assert.Empty(t, runner.calls)

	clock.Advance(2 * time.Hour)
	assert.Len(t, runner.calls, 1)
	assert.Len(t, sink.completions, 1)
}

func TestCancelPreventsExecution(t *testing.T) {
	s, clock, runner, sink, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	cmd, err := s.Schedule(ctx, "never mind", "2026-02-08T21:30:00", "")
	require.NoError(t, err)
	require.NoError(t, s.Cancel(ctx, cmd.ID))

	clock.Advance(time.Hour)
	assert.Empty(t, runner.calls)
	assert.Empty(t, sink.completions)

	err = s.Cancel(ctx, cmd.ID)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestRestoreRearmsFutureCommand(t *testing.T) {
	s, clock, runner, _, store := newTestScheduler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Command{
		ID:        "rec-1",
		Text:      "lock the front door",
		ExecuteAt: clock.Now().Add(2 * time.Hour),
		CreatedAt: clock.Now().Add(-time.Hour),
		Status:    StatusPending,
	}))

	require.NoError(t, s.Restore(ctx))
	clock.Advance(time.Hour)
	assert.Empty(t, runner.calls)

	clock.Advance(time.Hour)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "lock the front door", runner.calls[0].command)
}

func TestRestoreUsesSweepForDistantCommand(t *testing.T) {
	s, clock, runner, _, store := newTestScheduler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Command{
		ID:        "rec-2",
		Text:      "descale the kettle",
		ExecuteAt: clock.Now().Add(48 * time.Hour),
		CreatedAt: clock.Now(),
		Status:    StatusPending,
	}))

	require.NoError(t, s.Restore(ctx))
	clock.Advance(47 * time.Hour)
	assert.Empty(t, runner.calls)

	clock.Advance(2 * time.Hour)
	assert.Len(t, runner.calls, 1)
}

func TestRestoreExecutesRecentlyOverdueOnce(t *testing.T) {
	s, clock, runner, sink, store := newTestScheduler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Command{
		ID:        "rec-3",
		Text:      "close the blinds",
		ExecuteAt: clock.Now().Add(-2 * time.Hour),
		CreatedAt: clock.Now().Add(-3 * time.Hour),
		Status:    StatusPending,
	}))

	require.NoError(t, s.Restore(ctx))
	require.Len(t, runner.calls, 1)
	assert.Len(t, sink.completions, 1)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A second restore finds nothing left to run.
	require.NoError(t, s.Restore(ctx))
	assert.Len(t, runner.calls, 1)
}

func TestRestoreDropsStaleCommand(t *testing.T) {
	s, clock, runner, sink, store := newTestScheduler(t, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Command{
		ID:        "rec-4",
		Text:      "long forgotten",
		ExecuteAt: clock.Now().Add(-40 * time.Hour),
		CreatedAt: clock.Now().Add(-41 * time.Hour),
		Status:    StatusPending,
	}))

	require.NoError(t, s.Restore(ctx))
	assert.Empty(t, runner.calls)
	assert.Empty(t, sink.completions)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailedReplayStillRemovesRecord(t *testing.T) {
	s, clock, runner, sink, _ := newTestScheduler(t, nil)
	runner.answer = "the heating controller is offline"
	runner.ok = false

	_, err := s.Schedule(context.Background(), "warm up the study", "2026-02-08T21:01:00", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	require.Len(t, sink.completions, 1)
	assert.False(t, sink.completions[0].Success)
	assert.Equal(t, "the heating controller is offline", sink.completions[0].Answer)

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPanickedReplayStillRemovesRecord(t *testing.T) {
	s, clock, runner, sink, _ := newTestScheduler(t, nil)
	runner.panics = true

	_, err := s.Schedule(context.Background(), "doomed", "2026-02-08T21:01:00", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	require.Len(t, sink.completions, 1)
	assert.False(t, sink.completions[0].Success)

	pending, err := s.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCleanupDisarmsTimersButKeepsRecords(t *testing.T) {
	s, clock, runner, _, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	_, err := s.Schedule(ctx, "morning briefing", "2026-02-08T21:05:00", "")
	require.NoError(t, err)

	s.Cleanup()
	clock.Advance(time.Hour)
	assert.Empty(t, runner.calls)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPendingSortsSoonestFirst(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, nil)
	ctx := context.Background()

	_, err := s.Schedule(ctx, "third", "2026-02-09T09:00:00", "")
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "first", "2026-02-08T22:00:00", "")
	require.NoError(t, err)
	_, err = s.Schedule(ctx, "second", "2026-02-09T07:00:00", "")
	require.NoError(t, err)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "first", pending[0].Text)
	assert.Equal(t, "second", pending[1].Text)
	assert.Equal(t, "third", pending[2].Text)
}
