package tools

import (
	"context"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/embervale/hearth-agent/hearth/schedule"
)

// Tool names exposed to the model.
const (
	ScheduleToolName = "schedule_command"
	CancelToolName   = "cancel_scheduled_command"
	ListToolName     = "list_scheduled_commands"
)

// Scheduler is the slice of the deferred-command queue the built-in tools
// consume.
type Scheduler interface {
	Schedule(ctx context.Context, command, executeAt, description string) (schedule.Command, error)
	Cancel(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]schedule.Command, error)
}

const scheduleSchema = `{
	"type": "object",
	"properties": {
		"command": {
			"type": "string",
			"description": "The command to run later, phrased exactly as the user would say it."
		},
		"time": {
			"type": "string",
			"description": "When to run it, as local wall-clock time YYYY-MM-DDTHH:MM:SS or RFC 3339 with an explicit offset."
		},
		"description": {
			"type": "string",
			"description": "One short sentence describing what will happen."
		}
	},
	"required": ["command", "time"]
}`

// ScheduleTool defers a command for later execution.
type ScheduleTool struct {
	scheduler Scheduler
}

func NewScheduleTool(scheduler Scheduler) *ScheduleTool {
	return &ScheduleTool{scheduler: scheduler}
}

func (t *ScheduleTool) Name() string { return ScheduleToolName }

func (t *ScheduleTool) Spec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        ScheduleToolName,
		Description: "Schedule a command to run automatically at a later time. Use this whenever the user asks for something to happen later, at a specific time, or after a delay.",
		InputSchema: []byte(scheduleSchema),
	}
}

type scheduleParams struct {
	Command     string `json:"command"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

func (t *ScheduleTool) Invoke(ctx context.Context, args map[string]any) (ports.ToolResult, error) {
	var p scheduleParams
	if err := decodeArgs(args, &p); err != nil {
		return ports.ToolResult{}, err
	}

	cmd, err := t.scheduler.Schedule(ctx, p.Command, p.Time, p.Description)
	if err != nil {
		if fault.IsKind(err, fault.InvalidSchedule) {
			return failedResult("invalid schedule", err.Error()), nil
		}
		return ports.ToolResult{}, err
	}

	return ports.ToolResult{
		Success: true,
		Payload: map[string]any{
			ports.PayloadScheduleID: cmd.ID,
			"execute_at_utc":        cmd.ExecuteAt.Format(time.RFC3339),
			"delay_minutes":         cmd.DelayMinutes,
			"description":           cmd.Description,
		},
	}, nil
}
