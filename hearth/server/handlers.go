package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent"
	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/embervale/hearth-agent/hearth/schedule"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Engine is the slice of the conversation engine the HTTP surface drives.
type Engine interface {
	Run(ctx context.Context, cmd agent.Command) (agent.Result, error)
	ClearHistory()
}

// Schedules is the slice of the deferred-command queue the HTTP surface
// exposes.
type Schedules interface {
	Cancel(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]schedule.Command, error)
}

// Handler handles HTTP requests.
type Handler struct {
	engine    Engine
	schedules Schedules
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(engine Engine, schedules Schedules, clock ports.Clock, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		schedules: schedules,
		clock:     clock,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/commands", h.RunCommand)
	e.GET("/v1/schedules", h.ListSchedules)
	e.DELETE("/v1/schedules/:id", h.CancelSchedule)
	e.POST("/v1/history/clear", h.ClearHistory)
	e.GET("/health", h.Health)
}

// CommandRequest is the request to run one command through the engine.
type CommandRequest struct {
	Command string `json:"command"`
}

// RunCommand runs one user command to completion.
// POST /v1/commands
func (h *Handler) RunCommand(c echo.Context) error {
	ctx := c.Request().Context()

	var req CommandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Command) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "command is required"})
	}

	result, err := h.engine.Run(ctx, agent.Command{Text: req.Command})
	if err != nil {
		// Terminal failures still carry a user-facing answer.
		h.logger.Warn().Err(err).Msg("command ended in failure")
	}

	resp := map[string]any{
		"answer":    result.Answer,
		"succeeded": result.Succeeded,
	}
	if result.ScheduleID != "" {
		resp["schedule_id"] = result.ScheduleID
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSchedules lists the pending deferred commands, soonest first.
// GET /v1/schedules
func (h *Handler) ListSchedules(c echo.Context) error {
	ctx := c.Request().Context()

	pending, err := h.schedules.Pending(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list schedules")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list schedules"})
	}

	now := h.clock.Now()
	entries := make([]map[string]any, len(pending))
	for i, cmd := range pending {
		entries[i] = map[string]any{
			"schedule_id":    cmd.ID,
			"command":        cmd.Text,
			"description":    cmd.Description,
			"execute_at_utc": cmd.ExecuteAt.Format(time.RFC3339),
			"due_in_seconds": int(cmd.ExecuteAt.Sub(now).Seconds()),
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"schedules": entries})
}

// CancelSchedule removes one pending deferred command.
// DELETE /v1/schedules/:id
func (h *Handler) CancelSchedule(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.schedules.Cancel(ctx, id); err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "schedule not found"})
		}
		h.logger.Error().Err(err).Str("id", id).Msg("failed to cancel schedule")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to cancel schedule"})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// ClearHistory drops the retained conversation turns.
// POST /v1/history/clear
func (h *Handler) ClearHistory(c echo.Context) error {
	h.engine.ClearHistory()
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
