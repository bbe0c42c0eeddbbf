package agentports

import (
	"context"
)

// Completion reports one scheduler-driven execution to subscribers.
type Completion struct {
	ScheduleID string
	Command    string
	Success    bool
	Answer     string
}

// CompletionSink receives exactly one notification per scheduler-driven
// execution, whether it succeeded or failed.
type CompletionSink interface {
	Notify(ctx context.Context, c Completion)
}

// CompletionSinkFunc adapts a function to a CompletionSink.
type CompletionSinkFunc func(ctx context.Context, c Completion)

func (f CompletionSinkFunc) Notify(ctx context.Context, c Completion) { f(ctx, c) }
