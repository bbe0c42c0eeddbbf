package schedule

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduling defaults.
const (
	DefaultTimerThreshold = 24 * time.Hour
	DefaultSweepInterval  = 10 * time.Minute
	DefaultMaxHorizon     = 365 * 24 * time.Hour
	DefaultPastGrace      = time.Minute
)

// Config carries the scheduler's timing knobs. Delays up to TimerThreshold
// get a precise one-shot timer; longer ones rely on the periodic sweep.
type Config struct {
	TimerThreshold time.Duration
	SweepInterval  time.Duration
	MaxHorizon     time.Duration
	PastGrace      time.Duration
	Timezone       *time.Location
}

// DefaultConfig returns the stock timing knobs in the given timezone.
func DefaultConfig(tz *time.Location) Config {
	return Config{
		TimerThreshold: DefaultTimerThreshold,
		SweepInterval:  DefaultSweepInterval,
		MaxHorizon:     DefaultMaxHorizon,
		PastGrace:      DefaultPastGrace,
		Timezone:       tz,
	}
}

func (c *Config) normalize() {
	if c.TimerThreshold <= 0 {
		c.TimerThreshold = DefaultTimerThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.MaxHorizon <= 0 {
		c.MaxHorizon = DefaultMaxHorizon
	}
	if c.PastGrace <= 0 {
		c.PastGrace = DefaultPastGrace
	}
	if c.Timezone == nil {
		c.Timezone = time.Local
	}
}

// Runner replays a stored command through the conversation engine.
type Runner interface {
	RunScheduled(ctx context.Context, command string, createdAt time.Time) (answer string, ok bool)
}

// Scheduler owns the deferred-command lifecycle. The one-shot timer path
// and the periodic sweep funnel into the same execute-and-remove path; an
// in-memory claim set keeps the two from firing the same record twice
// within one process.
type Scheduler struct {
	cfg    Config
	store  *Store
	clock  ports.Clock
	sink   ports.CompletionSink
	tracer ports.Tracer
	logger zerolog.Logger

	mu       sync.Mutex
	runner   Runner
	timers   map[string]ports.TimerTask
	sweep    ports.TimerTask
	inflight map[string]struct{}
}

// NewScheduler wires the queue. Bind must be called with a runner before
// anything can fire.
func NewScheduler(
	cfg Config,
	store *Store,
	clock ports.Clock,
	sink ports.CompletionSink,
	tracer ports.Tracer,
	logger zerolog.Logger,
) *Scheduler {
	cfg.normalize()
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		sink:     sink,
		tracer:   tracer,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		timers:   make(map[string]ports.TimerTask),
		inflight: make(map[string]struct{}),
	}
}

// Bind attaches the runner that replays commands. It exists because the
// runner's tool inventory in turn includes the scheduling tools backed by
// this scheduler.
func (s *Scheduler) Bind(runner Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

// Schedule converts the caller-supplied local time to a UTC instant,
// persists the command and arms its execution. The delay must fall between
// the past-due grace and the maximum horizon.
func (s *Scheduler) Schedule(ctx context.Context, command, executeAtLocal, description string) (Command, error) {
	target, err := s.parseLocalTime(executeAtLocal)
	if err != nil {
		return Command{}, err
	}

	now := s.clock.Now()
	delay := target.Sub(now)
	if delay < -s.cfg.PastGrace {
		return Command{}, fault.Newf(fault.InvalidSchedule, "%s is in the past", target.Format(time.RFC3339))
	}
	if delay > s.cfg.MaxHorizon {
		return Command{}, fault.Newf(fault.InvalidSchedule, "%s is more than %d days ahead", target.Format(time.RFC3339), int(s.cfg.MaxHorizon.Hours()/24))
	}

	cmd := Command{
		ID:           uuid.NewString(),
		Text:         command,
		Description:  description,
		ExecuteAt:    target.UTC(),
		CreatedAt:    now.UTC(),
		DelayMinutes: int(math.Round(delay.Minutes())),
		Status:       StatusPending,
	}
	if err := s.store.Put(ctx, cmd); err != nil {
		return Command{}, err
	}

	s.mu.Lock()
	s.armLocked(cmd.ID, delay)
	s.mu.Unlock()

	s.logger.Info().
		Str("id", cmd.ID).
		Time("execute_at", cmd.ExecuteAt).
		Int("delay_minutes", cmd.DelayMinutes).
		Msg("command scheduled")
	return cmd, nil
}

// parseLocalTime accepts RFC3339 or a zoneless wall-clock time resolved in
// the configured timezone.
func (s *Scheduler) parseLocalTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", raw, s.cfg.Timezone)
	if err != nil {
		return time.Time{}, fault.Newf(fault.InvalidSchedule, "unparseable execution time %q", raw)
	}
	return t, nil
}

func (s *Scheduler) armLocked(id string, delay time.Duration) {
	if delay > s.cfg.TimerThreshold {
		s.ensureSweepLocked()
		return
	}
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = s.clock.ArmTimer(delay, func() { s.fire(id) })
}

func (s *Scheduler) ensureSweepLocked() {
	if s.sweep != nil {
		return
	}
	s.sweep = s.clock.ArmTicker(s.cfg.SweepInterval, s.sweepDue)
	s.logger.Debug().Dur("interval", s.cfg.SweepInterval).Msg("sweep started")
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()
	s.execute(context.Background(), id)
}

// sweepDue executes every persisted command whose instant has passed,
// skipping records a precise timer still owns.
func (s *Scheduler) sweepDue() {
	ctx := context.Background()
	commands, err := s.store.All(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed to load commands")
		return
	}
	now := s.clock.Now()
	for _, cmd := range commands {
		if cmd.ExecuteAt.After(now) {
			continue
		}
		s.mu.Lock()
		_, armed := s.timers[cmd.ID]
		s.mu.Unlock()
		if armed {
			continue
		}
		s.execute(ctx, cmd.ID)
	}
}

// execute is the single execute-and-remove path shared by the timer, the
// sweep and restore. The persisted record is deleted unconditionally after
// the run, and exactly one completion notification is emitted.
func (s *Scheduler) execute(ctx context.Context, id string) {
	s.mu.Lock()
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[id] = struct{}{}
	runner := s.runner
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
	}()

	cmd, ok, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("failed to load scheduled command")
		return
	}
	if !ok {
		// Already executed or cancelled.
		return
	}

	ctx, finish := s.tracer.StartSpan(ctx, "scheduled_execution", map[string]any{"id": id})
	answer, success := s.runCommand(ctx, runner, cmd)
	finish(nil)

	if _, err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("failed to delete executed command")
	}

	s.sink.Notify(ctx, ports.Completion{
		ScheduleID: cmd.ID,
		Command:    cmd.Text,
		Success:    success,
		Answer:     answer,
	})
}

// runCommand shields the scheduler from a panicking replay; the failure is
// logged and reported through the completion, never propagated.
func (s *Scheduler) runCommand(ctx context.Context, runner Runner, cmd Command) (answer string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Any("panic", r).Str("id", cmd.ID).Msg("replay panicked")
			answer, ok = "", false
		}
	}()
	if runner == nil {
		s.logger.Error().Str("id", cmd.ID).Msg("no runner bound, dropping replay")
		return "", false
	}
	return runner.RunScheduled(ctx, cmd.Text, cmd.CreatedAt)
}

// Restore re-arms every persisted command after a process restart. It runs
// once at startup, before any new schedule request: future commands get a
// timer or the sweep depending on their remaining delay, recently past-due
// ones execute immediately, and anything staler than the past-due
// tolerance is dropped.
func (s *Scheduler) Restore(ctx context.Context) error {
	commands, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	tolerance := s.cfg.TimerThreshold + s.cfg.SweepInterval

	for _, cmd := range commands {
		delay := cmd.ExecuteAt.Sub(now)
		switch {
		case delay > 0:
			s.mu.Lock()
			s.armLocked(cmd.ID, delay)
			s.mu.Unlock()
			s.logger.Info().Str("id", cmd.ID).Dur("delay", delay).Msg("restored scheduled command")
		case -delay <= tolerance:
			s.logger.Info().Str("id", cmd.ID).Dur("overdue", -delay).Msg("executing past-due command")
			s.execute(ctx, cmd.ID)
		default:
			s.logger.Warn().Str("id", cmd.ID).Dur("overdue", -delay).Msg("dropping stale command")
			if _, err := s.store.Delete(ctx, cmd.ID); err != nil {
				s.logger.Error().Err(err).Str("id", cmd.ID).Msg("failed to drop stale command")
			}
		}
	}
	return nil
}

// Cancel disarms any in-memory timer for id and deletes the persisted
// record. Unknown ids fail with a not-found condition.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	if timer, ok := s.timers[id]; ok {
		timer.Disarm()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return fault.Newf(fault.NotFound, "no scheduled command with id %s", id)
	}
	s.logger.Info().Str("id", id).Msg("scheduled command cancelled")
	return nil
}

// Pending lists the persisted commands, soonest first.
func (s *Scheduler) Pending(ctx context.Context) ([]Command, error) {
	return s.store.All(ctx)
}

// Cleanup disarms the sweep and every one-shot timer at shutdown. The
// persisted records stay for the next restore.
func (s *Scheduler) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweep != nil {
		s.sweep.Disarm()
		s.sweep = nil
	}
	for id, timer := range s.timers {
		timer.Disarm()
		delete(s.timers, id)
	}
}
