package agentports

import (
	"context"
	"time"
)

// FinishReason classifies why the model ended a turn.
type FinishReason string

const (
	// FinishStop is a normal completion, with or without tool calls.
	FinishStop FinishReason = "stop"
	// FinishFiltered means the response was blocked by a safety filter.
	FinishFiltered FinishReason = "filtered"
	// FinishTruncated means the response hit the output length limit.
	FinishTruncated FinishReason = "truncated"
	// FinishMalformed means the model emitted an unparseable tool call.
	FinishMalformed FinishReason = "malformed-call"
)

// ToolMode controls whether the model may request tool calls.
type ToolMode string

const (
	ToolModeAuto ToolMode = "auto"
	ToolModeNone ToolMode = "none"
)

// Usage carries the token counters reported by the service.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	TotalTokens      int
}

// ModelRequest is one outbound call to the language-model service.
// CacheName and (Instruction, Tools) are mutually exclusive: a cached
// context already embeds the instruction and tool declarations, and the
// service rejects requests carrying both.
type ModelRequest struct {
	Model       string
	Turns       []Turn
	CacheName   string
	Instruction string
	Tools       []ToolSpec
	ToolMode    ToolMode
	Temperature *float32
}

// ModelResponse is the classified outcome of one model call. Turn is the
// completed model turn (text, reasoning and tool-call parts) ready to be
// appended to the session; it is only meaningful for FinishStop.
type ModelResponse struct {
	Finish FinishReason
	Turn   Turn
	Usage  Usage
}

// CacheRequest describes the static payload to cache provider-side.
type CacheRequest struct {
	Model       string
	Instruction string
	Tools       []ToolSpec
	TTL         time.Duration
}

// CacheHandle references a provider-side cached context. It is bound to one
// model identifier and expires at a known instant.
type CacheHandle struct {
	Name      string
	Model     string
	ExpiresAt time.Time
}

// Provider is the language-model service boundary.
type Provider interface {
	Generate(ctx context.Context, req ModelRequest) (*ModelResponse, error)
	CreateCachedContext(ctx context.Context, req CacheRequest) (CacheHandle, error)
}
