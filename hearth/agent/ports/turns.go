package agentports

import (
	"strings"
	"time"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleTool marks a batch of tool results answering the model turn
	// immediately before it.
	RoleTool Role = "tool-result"
)

// Attachment is an inline binary payload (e.g. a camera snapshot). It is
// always carried as its own part, never nested inside a result payload.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Part is one ordered element of a Turn. Exactly one of Text, Call, Result
// or Binary is populated.
type Part struct {
	Text    string
	Thought bool // model-internal reasoning; stripped before persistence
	Call    *ToolCall
	Result  *ToolResult
	Binary  *Attachment
}

// Turn is one exchange unit with the language-model service.
type Turn struct {
	Role      Role
	Parts     []Part
	CreatedAt time.Time
	// Synthetic marks turns injected by the engine itself (seeded context,
	// wind-down instructions). They never count as user-authored.
	Synthetic bool
}

// TextPart builds a plain text part.
func TextPart(text string) Part { return Part{Text: text} }

// CallPart builds a tool-call request part.
func CallPart(call ToolCall) Part { return Part{Call: &call} }

// ResultPart builds a tool-result part.
func ResultPart(result ToolResult) Part { return Part{Result: &result} }

// BinaryPart builds an inline attachment part.
func BinaryPart(att Attachment) Part { return Part{Binary: &att} }

// NewUserTurn builds a user turn with a single text part.
func NewUserTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleUser, Parts: []Part{TextPart(text)}, CreatedAt: at}
}

// NewModelTurn builds a model turn with a single text part.
func NewModelTurn(text string, at time.Time) Turn {
	return Turn{Role: RoleModel, Parts: []Part{TextPart(text)}, CreatedAt: at}
}

// Text concatenates the turn's non-reasoning text parts.
func (t Turn) Text() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Text == "" || p.Thought {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// ToolCalls returns the tool-call requests carried by the turn, in order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range t.Parts {
		if p.Call != nil {
			calls = append(calls, *p.Call)
		}
	}
	return calls
}

// IsUserText reports whether the turn is a genuine user-authored text turn:
// user role, not synthetic, carrying non-empty text and no tool results.
func (t Turn) IsUserText() bool {
	if t.Role != RoleUser || t.Synthetic {
		return false
	}
	for _, p := range t.Parts {
		if p.Result != nil {
			return false
		}
	}
	return strings.TrimSpace(t.Text()) != ""
}

// StripThoughts returns a copy of the turn without model-internal reasoning
// parts. The result may have no parts left.
func (t Turn) StripThoughts() Turn {
	parts := make([]Part, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Thought {
			continue
		}
		parts = append(parts, p)
	}
	t.Parts = parts
	return t
}
