// Package tools hosts the engine's built-in capabilities and the router
// that merges them with the remote bridge inventory. Built-ins cover the
// deferred-command lifecycle; everything device-facing comes from the
// bridge.
package tools

import (
	"context"
	"encoding/json"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

// Tool is one locally hosted capability.
type Tool interface {
	Name() string
	Spec() ports.ToolSpec
	Invoke(ctx context.Context, args map[string]any) (ports.ToolResult, error)
}

// decodeArgs maps a loosely typed argument object onto a params struct via
// a JSON round trip.
func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// failedResult reports a capability-level failure the model can react to,
// as opposed to a Go error, which marks infrastructure trouble.
func failedResult(message, diagnostic string) ports.ToolResult {
	return ports.ToolResult{Success: false, Error: message, Diagnostic: diagnostic}
}
