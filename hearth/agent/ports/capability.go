package agentports

import (
	"context"
)

// PayloadScheduleID is the result-payload key under which scheduling
// capabilities report the identifier of a newly created schedule. The
// orchestrator threads that identifier through to its final result.
const PayloadScheduleID = "schedule_id"

// ToolSpec describes one callable capability exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	InputSchema []byte // JSON schema for the argument object
}

// ToolCall is a structured invocation request issued by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of one capability invocation. On failure,
// Error holds a short machine-stable message and Diagnostic the detail
// reported back to the model.
type ToolResult struct {
	ID         string
	Name       string
	Success    bool
	Payload    map[string]any
	Error      string
	Diagnostic string
	// Attachment is carried as a sibling part of the result, never nested
	// inside Payload.
	Attachment *Attachment
}

// CapabilityProvider is the host platform's tool inventory. Implementations
// must be safe for concurrent independent CallTool invocations.
type CapabilityProvider interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
}
