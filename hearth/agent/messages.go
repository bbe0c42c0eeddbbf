package agent

import (
	"github.com/embervale/hearth-agent/hearth/agent/fault"
)

// Fixed user-facing replies for commands that cannot be completed. The
// failure kind decides the reply here and nowhere else.
const (
	msgTryLater  = "I am handling too many requests right now. Please try again in a few minutes."
	msgFiltered  = "I am sorry, but I cannot help with that request."
	msgTruncated = "My answer grew too long to finish. Please try a narrower request."
	msgFailed    = "Something went wrong while handling your command. Please try again."
)

// userMessage maps a terminal failure to the text shown to the user.
func userMessage(err error) string {
	switch fault.KindOf(err) {
	case fault.RateLimited:
		return msgTryLater
	case fault.ContentFiltered:
		return msgFiltered
	case fault.Truncated:
		return msgTruncated
	default:
		return msgFailed
	}
}
