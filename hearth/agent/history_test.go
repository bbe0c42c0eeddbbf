package agent

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(capacity int) *History {
	return NewHistory(capacity, zerolog.New(zerolog.Nop()))
}

// randomTurn produces one of the turn shapes the engine actually appends,
// including degenerate ones the prune invariant must survive.
func randomTurn(rng *rand.Rand, at time.Time) ports.Turn {
	switch rng.Intn(6) {
	case 0:
		return ports.NewUserTurn(fmt.Sprintf("command %d", rng.Intn(1000)), at)
	case 1:
		return ports.NewModelTurn("answer", at)
	case 2:
		t := ports.NewModelTurn("", at)
		t.Parts = append(t.Parts, ports.CallPart(ports.ToolCall{Name: "list_devices"}))
		return t
	case 3:
		return ports.Turn{
			Role:      ports.RoleTool,
			Parts:     []ports.Part{ports.ResultPart(ports.ToolResult{Name: "list_devices", Success: true})},
			CreatedAt: at,
		}
	case 4:
		t := ports.NewUserTurn("seeded context", at)
		t.Synthetic = true
		return t
	default:
		// user turn with no text, e.g. a stray attachment
		return ports.Turn{
			Role:      ports.RoleUser,
			Parts:     []ports.Part{ports.BinaryPart(ports.Attachment{MIMEType: "image/png", Data: []byte{1}})},
			CreatedAt: at,
		}
	}
}

func TestPruneAlwaysYieldsEmptyOrUserTextHead(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2026, 2, 8, 21, 0, 0, 0, time.UTC)

	for round := 0; round < 500; round++ {
		h := newTestHistory(16)
		for i := 0; i < rng.Intn(40); i++ {
			h.Append(randomTurn(rng, now.Add(time.Duration(i)*time.Second)))
		}

		h.Prune()

		turns := h.Snapshot()
		if len(turns) == 0 {
			continue
		}
		assert.True(t, turns[0].IsUserText(),
			"round %d: pruned history must start with a genuine user-text turn, got role=%s synthetic=%v",
			round, turns[0].Role, turns[0].Synthetic)
		assert.LessOrEqual(t, len(turns), 16)
	}
}

func TestPruneDropsLeadingNonUserTurns(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()
	h.Append(ports.NewModelTurn("orphaned answer", now))
	h.Append(ports.Turn{Role: ports.RoleTool, Parts: []ports.Part{ports.ResultPart(ports.ToolResult{Name: "x", Success: true})}})
	h.Append(ports.NewUserTurn("turn on the light", now))
	h.Append(ports.NewModelTurn("done", now))

	h.Prune()

	turns := h.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "turn on the light", turns[0].Text())
}

func TestPruneClearsWhenNoUserTurnExists(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()
	h.Append(ports.NewModelTurn("hello", now))
	seeded := ports.NewUserTurn("seeded", now)
	seeded.Synthetic = true
	h.Append(seeded)

	h.Prune()

	assert.Zero(t, h.Len())
}

func TestAppendEvictsFIFO(t *testing.T) {
	h := newTestHistory(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		h.Append(ports.NewUserTurn(fmt.Sprintf("cmd %d", i), now))
	}

	turns := h.Snapshot()
	require.Len(t, turns, 3)
	assert.Equal(t, "cmd 2", turns[0].Text())
	assert.Equal(t, "cmd 4", turns[2].Text())
}

func TestSeedClosesDanglingUserTurn(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()
	h.Append(ports.NewUserTurn("unanswered", now))

	h.Seed("three commands were restored after restart", now)

	turns := h.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, ports.RoleModel, turns[1].Role)
	assert.True(t, turns[1].Synthetic)
	assert.Equal(t, "three commands were restored after restart", turns[1].Text())
}

func TestSeedAppendsSyntheticPair(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()

	h.Seed("schedule context", now)

	turns := h.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, ports.RoleUser, turns[0].Role)
	assert.True(t, turns[0].Synthetic)
	assert.False(t, turns[0].IsUserText())
	assert.Equal(t, ports.RoleModel, turns[1].Role)
}

func TestReplaceStripsThoughtsAndTrimsTail(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()

	model := ports.NewModelTurn("visible answer", now)
	model.Parts = append(model.Parts, ports.Part{Text: "internal chain of reasoning", Thought: true})

	session := []ports.Turn{
		ports.NewUserTurn("turn on the light", now),
		model,
		// dangling user turn from a failed follow-up must not persist
		ports.NewUserTurn("and the heating", now),
	}

	h.Replace(session)

	turns := h.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, ports.RoleModel, turns[1].Role)
	require.Len(t, turns[1].Parts, 1)
	assert.Equal(t, "visible answer", turns[1].Text())
}

func TestReplaceDropsThoughtOnlyTurns(t *testing.T) {
	h := newTestHistory(10)
	now := time.Now()

	thoughtOnly := ports.Turn{Role: ports.RoleModel, Parts: []ports.Part{{Text: "reasoning", Thought: true}}, CreatedAt: now}
	session := []ports.Turn{
		ports.NewUserTurn("hi", now),
		thoughtOnly,
		ports.NewModelTurn("hello", now),
	}

	h.Replace(session)

	turns := h.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[1].Text())
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	h := newTestHistory(10)
	h.Append(ports.NewUserTurn("original", time.Now()))

	snap := h.Snapshot()
	snap[0].Parts[0].Text = "mutated"

	assert.Equal(t, "original", h.Snapshot()[0].Text())
}
