package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/xeipuuv/gojsonschema"
)

// Dispatcher defaults.
const (
	DefaultToolConcurrency = 5
	DefaultToolTimeout     = 30 * time.Second
)

// ToolDispatcher fans tool calls out to the capability provider. Results
// come back one per call in request order; a failure in one call never
// prevents the others from completing and is converted into a structured
// failed result instead of propagating.
type ToolDispatcher struct {
	provider ports.CapabilityProvider
	schemas  map[string]*gojsonschema.Schema
	width    int
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewToolDispatcher compiles the tool schemas once and builds a dispatcher.
// Specs with no schema skip argument validation for that tool.
func NewToolDispatcher(provider ports.CapabilityProvider, specs []ports.ToolSpec, width int, timeout time.Duration, logger zerolog.Logger) (*ToolDispatcher, error) {
	if width <= 0 {
		width = DefaultToolConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	schemas := make(map[string]*gojsonschema.Schema, len(specs))
	for _, spec := range specs {
		if len(spec.InputSchema) == 0 {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(spec.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for tool %s: %w", spec.Name, err)
		}
		schemas[spec.Name] = schema
	}
	return &ToolDispatcher{
		provider: provider,
		schemas:  schemas,
		width:    width,
		timeout:  timeout,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Execute runs all calls concurrently and returns one result per call, in
// the order the calls were requested.
func (d *ToolDispatcher) Execute(ctx context.Context, calls []ports.ToolCall) []ports.ToolResult {
	results := make([]ports.ToolResult, len(calls))
	p := pool.New().WithMaxGoroutines(d.width)
	for i, call := range calls {
		p.Go(func() {
			results[i] = d.executeOne(ctx, call)
		})
	}
	p.Wait()
	return results
}

func (d *ToolDispatcher) executeOne(ctx context.Context, call ports.ToolCall) (res ports.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("tool", call.Name).Any("panic", r).Msg("capability panicked")
			res = failedResult(call, "execution panicked", fmt.Sprint(r))
		}
	}()

	if diag, ok := d.validateArgs(call); !ok {
		d.logger.Warn().Str("tool", call.Name).Str("diagnostic", diag).Msg("rejected tool arguments")
		return failedResult(call, "invalid arguments", diag)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.provider.CallTool(callCtx, call.Name, call.Args)
	if err != nil {
		d.logger.Warn().Err(err).Str("tool", call.Name).Msg("capability invocation failed")
		return failedResult(call, "execution failed", err.Error())
	}
	result.ID = call.ID
	result.Name = call.Name
	return result
}

// validateArgs checks the call's arguments against the tool's compiled
// schema. Tools with no registered schema pass through unchecked; the
// provider is the authority on entirely unknown names.
func (d *ToolDispatcher) validateArgs(call ports.ToolCall) (string, bool) {
	schema, ok := d.schemas[call.Name]
	if !ok {
		return "", true
	}
	doc, err := json.Marshal(call.Args)
	if err != nil {
		return fmt.Sprintf("arguments not serializable: %v", err), false
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Sprintf("schema validation failed: %v", err), false
	}
	if result.Valid() {
		return "", true
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; "), false
}

func failedResult(call ports.ToolCall, msg, diagnostic string) ports.ToolResult {
	return ports.ToolResult{
		ID:         call.ID,
		Name:       call.Name,
		Success:    false,
		Error:      msg,
		Diagnostic: diagnostic,
	}
}
