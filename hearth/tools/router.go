package tools

import (
	"context"
	"fmt"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// Router merges the remote bridge inventory with the locally hosted tools
// behind one CapabilityProvider. Local tools win name collisions; a nil
// remote leaves the built-ins on their own.
type Router struct {
	remote ports.CapabilityProvider
	local  map[string]Tool
	order  []string
	logger zerolog.Logger
}

var _ ports.CapabilityProvider = (*Router)(nil)

func NewRouter(remote ports.CapabilityProvider, logger zerolog.Logger, locals ...Tool) *Router {
	r := &Router{
		remote: remote,
		local:  make(map[string]Tool, len(locals)),
		logger: logger.With().Str("component", "tool_router").Logger(),
	}
	for _, tool := range locals {
		if _, dup := r.local[tool.Name()]; dup {
			r.logger.Warn().Str("tool", tool.Name()).Msg("duplicate local tool ignored")
			continue
		}
		r.local[tool.Name()] = tool
		r.order = append(r.order, tool.Name())
	}
	return r
}

// ListTools returns the remote inventory followed by the built-ins. A
// remote spec shadowed by a local tool of the same name is dropped.
func (r *Router) ListTools(ctx context.Context) ([]ports.ToolSpec, error) {
	var specs []ports.ToolSpec
	if r.remote != nil {
		remote, err := r.remote.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bridge tools: %w", err)
		}
		for _, spec := range remote {
			if _, shadowed := r.local[spec.Name]; shadowed {
				r.logger.Warn().Str("tool", spec.Name).Msg("bridge tool shadowed by built-in")
				continue
			}
			specs = append(specs, spec)
		}
	}
	for _, name := range r.order {
		specs = append(specs, r.local[name].Spec())
	}
	return specs, nil
}

func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (ports.ToolResult, error) {
	if tool, ok := r.local[name]; ok {
		return tool.Invoke(ctx, args)
	}
	if r.remote != nil {
		return r.remote.CallTool(ctx, name, args)
	}
	return ports.ToolResult{}, fmt.Errorf("unknown tool %q", name)
}
