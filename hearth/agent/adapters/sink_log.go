package adapters

import (
	"context"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// LogSink reports scheduler completions to the structured log. Hosts with a
// push channel replace this with their own sink.
type LogSink struct {
	logger zerolog.Logger
}

var _ ports.CompletionSink = (*LogSink)(nil)

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "completion-sink").Logger()}
}

func (s *LogSink) Notify(ctx context.Context, c ports.Completion) {
	event := s.logger.Info()
	if !c.Success {
		event = s.logger.Warn()
	}
	event.
		Str("schedule_id", c.ScheduleID).
		Str("command", c.Command).
		Bool("success", c.Success).
		Str("answer", c.Answer).
		Msg("scheduled command completed")
}
