// Package fault defines the closed error taxonomy shared by the engine.
// Components classify failures by Kind; mapping a Kind to user-facing text
// happens in exactly one place, at the orchestrator boundary.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of failure classes the engine acts on.
type Kind int

const (
	// Internal is the zero value for unclassified failures.
	Internal Kind = iota
	// RateLimited marks quota/rate conditions; the only retryable kind.
	RateLimited
	// ContentFiltered marks model responses blocked by a safety filter.
	ContentFiltered
	// Truncated marks model responses cut off by the output length limit.
	Truncated
	// MalformedCall marks unparseable tool calls emitted by the model.
	MalformedCall
	// ToolFailed marks a capability invocation that raised or errored.
	ToolFailed
	// InvalidSchedule marks schedule parameters rejected synchronously.
	InvalidSchedule
	// NotFound marks lookups of unknown identifiers.
	NotFound
	// HistoryInvalid marks structurally corrupt conversation history.
	HistoryInvalid
	// Provider marks non-quota failures of the language-model service.
	Provider
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case ContentFiltered:
		return "content_filtered"
	case Truncated:
		return "truncated"
	case MalformedCall:
		return "malformed_call"
	case ToolFailed:
		return "tool_failed"
	case InvalidSchedule:
		return "invalid_schedule"
	case NotFound:
		return "not_found"
	case HistoryInvalid:
		return "history_invalid"
	case Provider:
		return "provider"
	default:
		return "internal"
	}
}

// Failure is a classified error with an optional structured payload.
type Failure struct {
	Kind Kind
	Msg  string
	// SuggestedWait is the server-suggested retry delay, when the error
	// payload carried one. Zero means none was suggested.
	SuggestedWait time.Duration
	Err           error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// New builds a Failure with no underlying cause.
func New(kind Kind, msg string) *Failure {
	return &Failure{Kind: kind, Msg: msg}
}

// Newf builds a Failure with a formatted message.
func Newf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, msg string) *Failure {
	return &Failure{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first Failure in err's chain, or Internal
// when the chain carries none.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Internal
}

// IsKind reports whether err's chain carries a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// SuggestedWaitOf extracts the server-suggested retry delay from err's
// chain, if any.
func SuggestedWaitOf(err error) (time.Duration, bool) {
	var f *Failure
	if errors.As(err, &f) && f.SuggestedWait > 0 {
		return f.SuggestedWait, true
	}
	return 0, false
}
