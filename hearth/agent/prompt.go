package agent

import (
	"fmt"
	"strings"
	"time"
)

// DefaultInstruction is the static system prompt. The current time, timezone,
// and locale never appear here; they ride on each command, and the cached
// payload must stay byte-stable.
const DefaultInstruction = `You are Hearth, an assistant that operates a smart home on the user's behalf.

You control devices, trigger flows, and answer status questions exclusively through the tools provided to you. Never claim an action happened unless a tool call reported success. When you do not know which device or zone the user means, discover it with a query tool before acting. Commands can be deferred to a later moment with the scheduling tool; confirm the resolved execution time back to the user.

Answer in the user's language, briefly and concretely. If a tool reports an error, say what failed in plain words and, when sensible, what the user can try instead.`

// windDownInstruction replaces tool access on the last permitted model call.
const windDownInstruction = `You have used every available step for this request and may not call any more tools. Apologize briefly to the user and state that the request could not be completed.`

const preambleTimeLayout = "Monday, 2 January 2006 15:04:05"

// commandPreamble renders the time-varying context prefixed to every user
// command.
func commandPreamble(now time.Time, loc *time.Location, locale string) string {
	return fmt.Sprintf("Current date and time: %s (%s). Locale: %s.",
		now.In(loc).Format(preambleTimeLayout), loc.String(), locale)
}

// replayPreamble marks a command replayed by the scheduler so the model can
// phrase the answer as a follow-up to an earlier request.
func replayPreamble(createdAt time.Time, loc *time.Location) string {
	return fmt.Sprintf("The user scheduled this command earlier, on %s. It is being carried out now as requested; phrase your answer accordingly.",
		createdAt.In(loc).Format(preambleTimeLayout))
}

// composeCommand builds the full text of the user turn for a command.
func composeCommand(cmd Command, now time.Time, loc *time.Location, locale string) string {
	var b strings.Builder
	b.WriteString(commandPreamble(now, loc, locale))
	if cmd.Replay {
		b.WriteString("\n")
		b.WriteString(replayPreamble(cmd.ReplayCreatedAt, loc))
	}
	b.WriteString("\n\n")
	b.WriteString(cmd.Text)
	return b.String()
}
