package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/embervale/hearth-agent/hearth/agent"
	"github.com/embervale/hearth-agent/hearth/agent/fault"
	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/embervale/hearth-agent/hearth/schedule"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	runFunc    func(ctx context.Context, cmd agent.Command) (agent.Result, error)
	clearCalls int
}

func (e *stubEngine) Run(ctx context.Context, cmd agent.Command) (agent.Result, error) {
	return e.runFunc(ctx, cmd)
}

func (e *stubEngine) ClearHistory() { e.clearCalls++ }

type stubSchedules struct {
	cancelFunc  func(ctx context.Context, id string) error
	pendingFunc func(ctx context.Context) ([]schedule.Command, error)
}

func (s *stubSchedules) Cancel(ctx context.Context, id string) error {
	return s.cancelFunc(ctx, id)
}

func (s *stubSchedules) Pending(ctx context.Context) ([]schedule.Command, error) {
	return s.pendingFunc(ctx)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time                                 { return c.now }
func (c fixedClock) Sleep(context.Context, time.Duration) error     { return nil }
func (c fixedClock) ArmTimer(time.Duration, func()) ports.TimerTask { return nil }
func (c fixedClock) ArmTicker(time.Duration, func()) ports.TimerTask {
	return nil
}

var testNow = time.Date(2026, time.February, 8, 21, 0, 0, 0, time.UTC)

func newTestHandler(engine *stubEngine, schedules *stubSchedules) *Handler {
	return NewHandler(engine, schedules, fixedClock{now: testNow}, zerolog.New(zerolog.Nop()))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRunCommandReturnsAnswer(t *testing.T) {
	var gotText string
	engine := &stubEngine{
		runFunc: func(_ context.Context, cmd agent.Command) (agent.Result, error) {
			gotText = cmd.Text
			return agent.Result{Answer: "the porch light is off", Succeeded: true, ScheduleID: "sched-1"}, nil
		},
	}
	h := newTestHandler(engine, &stubSchedules{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"command":"turn off the porch light"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.RunCommand(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "turn off the porch light", gotText)
	assert.Equal(t, "the porch light is off", body["answer"])
	assert.Equal(t, true, body["succeeded"])
	assert.Equal(t, "sched-1", body["schedule_id"])
}

func TestRunCommandRequiresCommand(t *testing.T) {
	h := newTestHandler(&stubEngine{}, &stubSchedules{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"command":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.RunCommand(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCommandFailureStillAnswers(t *testing.T) {
	engine := &stubEngine{
		runFunc: func(context.Context, agent.Command) (agent.Result, error) {
			return agent.Result{Answer: "Sorry, something went wrong while handling your request.", Succeeded: false},
				errors.New("model call failed")
		},
	}
	h := newTestHandler(engine, &stubSchedules{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"command":"dim the lights"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.RunCommand(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["succeeded"])
	assert.NotEmpty(t, body["answer"])
	assert.NotContains(t, body, "schedule_id")
}

func TestListSchedulesComputesDueSeconds(t *testing.T) {
	schedules := &stubSchedules{
		pendingFunc: func(context.Context) ([]schedule.Command, error) {
			return []schedule.Command{
				{
					ID:          "sched-2",
					Text:        "water the plants",
					Description: "garden care",
					ExecuteAt:   testNow.Add(90 * time.Second),
				},
				{
					ID:        "sched-3",
					Text:      "close the blinds",
					ExecuteAt: testNow.Add(-2 * time.Minute),
				},
			}, nil
		},
	}
	h := newTestHandler(&stubEngine{}, schedules)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/v1/schedules", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.ListSchedules(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	entries, ok := body["schedules"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)

	entry := entries[0].(map[string]any)
	assert.Equal(t, "sched-2", entry["schedule_id"])
	assert.Equal(t, "water the plants", entry["command"])
	assert.Equal(t, float64(90), entry["due_in_seconds"])

	// Overdue records report how late they are as a negative due time.
	overdue := entries[1].(map[string]any)
	assert.Equal(t, "sched-3", overdue["schedule_id"])
	assert.Equal(t, float64(-120), overdue["due_in_seconds"])
}

func TestCancelScheduleNotFound(t *testing.T) {
	schedules := &stubSchedules{
		cancelFunc: func(_ context.Context, id string) error {
			return fault.Newf(fault.NotFound, "no scheduled command with id %s", id)
		},
	}
	h := newTestHandler(&stubEngine{}, schedules)
	e := echo.New()

	req := httptest.NewRequest(http.MethodDelete, "/v1/schedules/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	require.NoError(t, h.CancelSchedule(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelScheduleSuccess(t *testing.T) {
	var gotID string
	schedules := &stubSchedules{
		cancelFunc: func(_ context.Context, id string) error {
			gotID = id
			return nil
		},
	}
	h := newTestHandler(&stubEngine{}, schedules)
	e := echo.New()

	req := httptest.NewRequest(http.MethodDelete, "/v1/schedules/sched-3", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("sched-3")

	require.NoError(t, h.CancelSchedule(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sched-3", gotID)
}

func TestClearHistory(t *testing.T) {
	engine := &stubEngine{}
	h := newTestHandler(engine, &stubSchedules{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/v1/history/clear", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.ClearHistory(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.clearCalls)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubEngine{}, &stubSchedules{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Health(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
