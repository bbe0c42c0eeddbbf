package tools

import (
	"context"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

const listSchema = `{
	"type": "object",
	"properties": {}
}`

// ListTool reports the pending scheduled commands, soonest first.
type ListTool struct {
	scheduler Scheduler
}

func NewListTool(scheduler Scheduler) *ListTool {
	return &ListTool{scheduler: scheduler}
}

func (t *ListTool) Name() string { return ListToolName }

func (t *ListTool) Spec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        ListToolName,
		Description: "List the commands currently scheduled for later execution.",
		InputSchema: []byte(listSchema),
	}
}

func (t *ListTool) Invoke(ctx context.Context, _ map[string]any) (ports.ToolResult, error) {
	pending, err := t.scheduler.Pending(ctx)
	if err != nil {
		return ports.ToolResult{}, err
	}

	entries := make([]map[string]any, 0, len(pending))
	for _, cmd := range pending {
		entries = append(entries, map[string]any{
			"schedule_id":    cmd.ID,
			"command":        cmd.Text,
			"description":    cmd.Description,
			"execute_at_utc": cmd.ExecuteAt.Format(time.RFC3339),
			"delay_minutes":  cmd.DelayMinutes,
		})
	}

	return ports.ToolResult{
		Success: true,
		Payload: map[string]any{
			"count":    len(entries),
			"commands": entries,
		},
	}, nil
}
