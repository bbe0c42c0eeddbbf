package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// DefaultTurnBudget bounds the model round-trips in one session.
const DefaultTurnBudget = 15

// Command is one natural-language request entering the engine. Replay marks
// commands fired by the scheduler; ReplayCreatedAt is when the user
// originally asked for them.
type Command struct {
	Text            string
	Replay          bool
	ReplayCreatedAt time.Time
}

// Result is the outcome reported back for one command. It is always
// populated, even when Run also returns an error.
type Result struct {
	Answer     string
	Succeeded  bool
	ScheduleID string
}

// OrchestratorConfig carries the static knobs of the turn loop.
type OrchestratorConfig struct {
	Model        string
	Temperature  *float32
	TurnBudget   int
	ScheduleTool string // capability whose results carry a schedule id
	Timezone     *time.Location
	Locale       string
	Instruction  string
	Tools        []ports.ToolSpec
}

// Orchestrator drives the multi-turn function-calling loop: model call,
// concurrent tool execution, next model call, until an answer, a give-up or
// a terminal failure. Sessions against the same history are serialized; a
// scheduler replay waits for a live user session instead of interleaving
// with it.
type Orchestrator struct {
	model        string
	temperature  *float32
	turnBudget   int
	scheduleTool string
	timezone     *time.Location
	locale       string
	instruction  string
	tools        []ports.ToolSpec

	provider   ports.Provider
	dispatcher *ToolDispatcher
	history    *History
	cache      *ContextCache
	retry      *RetryPolicy
	clock      ports.Clock
	tracer     ports.Tracer
	logger     zerolog.Logger

	sessionMu sync.Mutex
}

// NewOrchestrator wires the turn loop. cache may be nil, in which case the
// instruction and tool declarations are sent inline on every call.
func NewOrchestrator(
	cfg OrchestratorConfig,
	provider ports.Provider,
	dispatcher *ToolDispatcher,
	history *History,
	cache *ContextCache,
	retry *RetryPolicy,
	clock ports.Clock,
	tracer ports.Tracer,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = DefaultTurnBudget
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	return &Orchestrator{
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		turnBudget:   cfg.TurnBudget,
		scheduleTool: cfg.ScheduleTool,
		timezone:     cfg.Timezone,
		locale:       cfg.Locale,
		instruction:  cfg.Instruction,
		tools:        cfg.Tools,
		provider:     provider,
		dispatcher:   dispatcher,
		history:      history,
		cache:        cache,
		retry:        retry,
		clock:        clock,
		tracer:       tracer,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// session is the state of one run. Turns accumulate here and are written
// back to the shared history only at a terminal state.
type session struct {
	turns      []ports.Turn
	modelTurns int
	scheduleID string
}

func (s *session) captureScheduleID(scheduleTool string, results []ports.ToolResult) {
	for _, r := range results {
		if r.Name != scheduleTool || !r.Success {
			continue
		}
		if id, ok := r.Payload[ports.PayloadScheduleID].(string); ok && id != "" {
			s.scheduleID = id
		}
	}
}

// Run executes one command to a terminal state. The returned Result is
// always safe to show the user; the error, when non-nil, classifies why the
// session failed.
func (o *Orchestrator) Run(ctx context.Context, cmd Command) (Result, error) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()

	var runErr error
	ctx, finish := o.tracer.StartSpan(ctx, "session", map[string]any{
		"replay": cmd.Replay,
	})
	defer func() { finish(runErr) }()

	o.history.Prune()

	now := o.clock.Now()
	s := &session{turns: o.history.Snapshot()}
	s.turns = append(s.turns, ports.NewUserTurn(composeCommand(cmd, now, o.timezone, o.locale), now))

	malformed := false
	for step := 1; step <= o.turnBudget; step++ {
		resp, err := o.generate(ctx, s.turns, ports.ToolModeAuto)
		if err != nil {
			runErr = err
			return o.terminal(s, err)
		}

		switch resp.Finish {
		case ports.FinishFiltered:
			runErr = fault.New(fault.ContentFiltered, "response blocked by safety filter")
			return o.terminal(s, runErr)
		case ports.FinishTruncated:
			runErr = fault.New(fault.Truncated, "response cut off by output limit")
			return o.terminal(s, runErr)
		case ports.FinishMalformed:
			// The bad turn is discarded, the step is still spent.
			malformed = true
			o.logger.Warn().Int("step", step).Msg("model emitted malformed tool call, retrying")
			o.tracer.Event(ctx, "malformed_call", map[string]any{"step": step})
			continue
		}
		malformed = false

		s.turns = append(s.turns, resp.Turn)
		s.modelTurns++

		calls := resp.Turn.ToolCalls()
		if len(calls) == 0 {
			answer := strings.TrimSpace(resp.Turn.Text())
			o.syncHistory(s)
			return Result{Answer: answer, Succeeded: answer != "", ScheduleID: s.scheduleID}, nil
		}

		o.tracer.Event(ctx, "tool_calls", map[string]any{"step": step, "count": len(calls)})
		results := o.dispatcher.Execute(ctx, calls)
		s.captureScheduleID(o.scheduleTool, results)
		s.turns = append(s.turns, toolResultTurn(results, o.clock.Now()))
	}

	if malformed {
		runErr = fault.Newf(fault.MalformedCall, "model kept emitting malformed tool calls for %d steps", o.turnBudget)
		return o.terminal(s, runErr)
	}

	res, err := o.windDown(ctx, s)
	runErr = err
	return res, err
}

// windDown makes one last model call with tool calling disabled so the
// session still closes on a well-formed model turn. Only when that call
// itself fails is the history cleared and a fixed message returned.
func (o *Orchestrator) windDown(ctx context.Context, s *session) (Result, error) {
	o.logger.Info().Int("budget", o.turnBudget).Msg("turn budget exhausted, winding down")
	o.tracer.Event(ctx, "wind_down", map[string]any{"turns": len(s.turns)})

	user := ports.NewUserTurn(windDownInstruction, o.clock.Now())
	user.Synthetic = true
	s.turns = append(s.turns, user)

	resp, err := o.generate(ctx, s.turns, ports.ToolModeNone)
	if err == nil && resp.Finish != ports.FinishStop {
		err = fault.Newf(fault.Provider, "wind-down call finished with %s", resp.Finish)
	}
	if err != nil {
		o.logger.Error().Err(err).Msg("wind-down call failed, discarding history")
		o.history.Clear()
		return Result{Answer: msgFailed, ScheduleID: s.scheduleID}, err
	}

	s.turns = append(s.turns, resp.Turn)
	s.modelTurns++
	o.syncHistory(s)

	answer := strings.TrimSpace(resp.Turn.Text())
	if answer == "" {
		answer = msgFailed
	}
	return Result{Answer: answer, Succeeded: false, ScheduleID: s.scheduleID}, nil
}

// generate issues one model call through the retry policy. ToolModeNone
// bypasses the cached context because the cached payload embeds the tool
// declarations.
func (o *Orchestrator) generate(ctx context.Context, turns []ports.Turn, mode ports.ToolMode) (*ports.ModelResponse, error) {
	req := ports.ModelRequest{
		Model:       o.model,
		Turns:       turns,
		ToolMode:    mode,
		Temperature: o.temperature,
	}
	switch {
	case mode == ports.ToolModeNone:
		req.Instruction = o.instruction
	case o.cache != nil:
		handle, err := o.cache.Ensure(ctx, o.model)
		if err != nil {
			o.logger.Warn().Err(err).Msg("context cache unavailable, sending payload inline")
			req.Instruction = o.instruction
			req.Tools = o.tools
		} else {
			req.CacheName = handle.Name
		}
	default:
		req.Instruction = o.instruction
		req.Tools = o.tools
	}

	var resp *ports.ModelResponse
	err := o.retry.Do(ctx, "generate", func(ctx context.Context) error {
		r, err := o.provider.Generate(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// terminal resolves a failed session to a user-facing result. The session is
// written back only when it produced at least one completed model turn.
func (o *Orchestrator) terminal(s *session, err error) (Result, error) {
	o.syncHistory(s)
	return Result{Answer: userMessage(err), ScheduleID: s.scheduleID}, err
}

func (o *Orchestrator) syncHistory(s *session) {
	if s.modelTurns == 0 {
		return
	}
	o.history.Replace(s.turns)
}

// toolResultTurn batches the results of one dispatch into a single turn,
// in request order. Attachments ride as sibling parts next to their result.
func toolResultTurn(results []ports.ToolResult, at time.Time) ports.Turn {
	turn := ports.Turn{Role: ports.RoleTool, CreatedAt: at}
	for _, r := range results {
		att := r.Attachment
		r.Attachment = nil
		turn.Parts = append(turn.Parts, ports.ResultPart(r))
		if att != nil {
			turn.Parts = append(turn.Parts, ports.BinaryPart(*att))
		}
	}
	return turn
}

// Seed injects out-of-band context ahead of the next command.
func (o *Orchestrator) Seed(text string) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	o.history.Seed(text, o.clock.Now())
}

// ClearHistory drops the conversation log. Exposed for the management
// surface.
func (o *Orchestrator) ClearHistory() {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	o.history.Clear()
}

// RunScheduled executes a command replayed by the scheduler.
func (o *Orchestrator) RunScheduled(ctx context.Context, command string, createdAt time.Time) (string, bool) {
	res, err := o.Run(ctx, Command{Text: command, Replay: true, ReplayCreatedAt: createdAt})
	if err != nil {
		o.logger.Warn().Err(err).Str("command", command).Msg("scheduled command failed")
	}
	return res.Answer, res.Succeeded
}
