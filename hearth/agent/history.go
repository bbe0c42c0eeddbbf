package agent

import (
	"sync"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
)

// DefaultHistoryCapacity bounds the turn log when no capacity is configured.
const DefaultHistoryCapacity = 50

// History is the bounded conversation log kept across orchestration
// sessions. One session owns it exclusively for the duration of a run; the
// store's own lock only guards against the management surface.
//
// Invariant: after any truncation, the first turn is a genuine
// user-authored text turn, or the log is empty.
type History struct {
	mu       sync.Mutex
	capacity int
	turns    []ports.Turn
	logger   zerolog.Logger
}

// NewHistory builds an empty history bounded to capacity turns.
func NewHistory(capacity int, logger zerolog.Logger) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		logger:   logger.With().Str("component", "history").Logger(),
	}
}

// Append adds one turn, evicting from the front when over capacity.
func (h *History) Append(turn ports.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	h.evictLocked()
}

// Snapshot returns a copy of the log that the caller may mutate freely.
func (h *History) Snapshot() []ports.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.Turn, len(h.turns))
	copy(out, h.turns)
	for i := range out {
		parts := make([]ports.Part, len(out[i].Parts))
		copy(parts, out[i].Parts)
		out[i].Parts = parts
	}
	return out
}

// Len reports the current number of turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear drops the whole log.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Prune runs before every orchestration session: truncate to capacity, then
// drop leading turns until the log starts with a genuine user-text turn. A
// log with no such turn is unusable to the model and is cleared wholesale.
func (h *History) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictLocked()
	for i, t := range h.turns {
		if !t.IsUserText() {
			continue
		}
		if i > 0 {
			h.logger.Debug().Int("dropped", i).Msg("pruned leading non-user turns")
			h.turns = append([]ports.Turn(nil), h.turns[i:]...)
		}
		return
	}
	if len(h.turns) > 0 {
		h.logger.Warn().Int("discarded", len(h.turns)).Msg("no user-text turn found, discarding history")
		h.turns = nil
	}
}

// Seed injects an out-of-band context message ahead of the next command.
// The context always lands as a model turn so the log keeps ending on a
// model turn; when the log currently ends on an unanswered user turn, only
// the model turn is appended to close the pair.
func (h *History) Seed(contextText string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	model := ports.NewModelTurn(contextText, at)
	model.Synthetic = true
	if n := len(h.turns); n > 0 && h.turns[n-1].Role == ports.RoleUser {
		h.turns = append(h.turns, model)
	} else {
		user := ports.NewUserTurn("Context update follows.", at)
		user.Synthetic = true
		h.turns = append(h.turns, user, model)
	}
	h.evictLocked()
}

// Replace is the terminal-state writeback: it persists the session's turns
// with model-internal reasoning stripped, trims a dangling non-model tail
// so the log ends on a model turn, and enforces capacity.
func (h *History) Replace(turns []ports.Turn) {
	stripped := make([]ports.Turn, 0, len(turns))
	for _, t := range turns {
		t = t.StripThoughts()
		if len(t.Parts) == 0 {
			continue
		}
		stripped = append(stripped, t)
	}
	for len(stripped) > 0 && stripped[len(stripped)-1].Role != ports.RoleModel {
		stripped = stripped[:len(stripped)-1]
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = stripped
	h.evictLocked()
}

func (h *History) evictLocked() {
	if over := len(h.turns) - h.capacity; over > 0 {
		h.turns = append([]ports.Turn(nil), h.turns[over:]...)
	}
}
