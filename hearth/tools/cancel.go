package tools

import (
	"context"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

const cancelSchema = `{
	"type": "object",
	"properties": {
		"schedule_id": {
			"type": "string",
			"description": "Identifier of the scheduled command to cancel, as returned when it was created or listed."
		}
	},
	"required": ["schedule_id"]
}`

// CancelTool removes a pending scheduled command.
type CancelTool struct {
	scheduler Scheduler
}

func NewCancelTool(scheduler Scheduler) *CancelTool {
	return &CancelTool{scheduler: scheduler}
}

func (t *CancelTool) Name() string { return CancelToolName }

func (t *CancelTool) Spec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        CancelToolName,
		Description: "Cancel a previously scheduled command so it never runs.",
		InputSchema: []byte(cancelSchema),
	}
}

type cancelParams struct {
	ScheduleID string `json:"schedule_id"`
}

func (t *CancelTool) Invoke(ctx context.Context, args map[string]any) (ports.ToolResult, error) {
	var p cancelParams
	if err := decodeArgs(args, &p); err != nil {
		return ports.ToolResult{}, err
	}

	if err := t.scheduler.Cancel(ctx, p.ScheduleID); err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return failedResult("unknown schedule", err.Error()), nil
		}
		return ports.ToolResult{}, err
	}

	return ports.ToolResult{
		Success: true,
		Payload: map[string]any{
			ports.PayloadScheduleID: p.ScheduleID,
			"cancelled":             true,
		},
	}, nil
}
