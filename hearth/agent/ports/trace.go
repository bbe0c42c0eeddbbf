package agentports

import (
	"context"
)

// Tracer provides minimal span/event instrumentation for session and
// scheduler execution paths.
type Tracer interface {
	// StartSpan starts a span and returns a derived context plus a finish
	// function to call with the terminal error (nil on success).
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	// Event records a point-in-time event within the current span.
	Event(ctx context.Context, name string, attrs map[string]any)
}
