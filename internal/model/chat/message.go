package chat

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a wire role onto a known Role. Anything that is not
// explicitly "user" is treated as an assistant turn.
func ParseRole(raw string) Role {
	if Role(raw) == RoleUser {
		return RoleUser
	}
	return RoleAssistant
}

// Turn is one message in a conversation. Turns are immutable once appended.
type Turn struct {
	ID        string
	Role      Role
	Payload   Payload
	CreatedAt time.Time
}

// NewUserTurn builds a plain-text turn authored by the user.
func NewUserTurn(id, text string, at time.Time) Turn {
	return Turn{ID: id, Role: RoleUser, Payload: PlainText{Text: text}, CreatedAt: at}
}

// WireTurn is the JSON shape exchanged with the answering endpoint. Over
// time it has carried its body in "text", "response" or "content"; Normalize
// folds all of them into a single Payload variant.
type WireTurn struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Text      *string         `json:"text,omitempty"`
	Response  *string         `json:"response,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
}

// Normalize converts a wire element into a Turn.
func (w WireTurn) Normalize() Turn {
	turn := Turn{
		ID:      w.ID,
		Role:    ParseRole(w.Role),
		Payload: PlainText{},
	}
	if w.CreatedAt != nil {
		turn.CreatedAt = *w.CreatedAt
	}

	if ruling, ok := ClassifyContent(w.Content); ok {
		turn.Payload = ruling
		return turn
	}
	if w.Response != nil {
		turn.Payload = MarkdownBody{Markdown: *w.Response}
		return turn
	}
	if w.Text != nil {
		turn.Payload = PlainText{Text: *w.Text}
	}
	return turn
}

// Wire converts a Turn back into the wire shape.
func (t Turn) Wire() WireTurn {
	w := WireTurn{ID: t.ID, Role: string(t.Role)}
	if !t.CreatedAt.IsZero() {
		at := t.CreatedAt
		w.CreatedAt = &at
	}

	switch p := t.Payload.(type) {
	case MarkdownBody:
		body := p.Markdown
		w.Response = &body
	case StructuredRuling:
		raw, err := json.Marshal(p)
		if err == nil {
			w.Content = raw
		}
	case PlainText:
		text := p.Text
		w.Text = &text
	default:
		empty := ""
		w.Text = &empty
	}
	return w
}

// MarshalJSON encodes the turn in its wire shape.
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Wire())
}

// UnmarshalJSON decodes any of the wire shapes into a Turn.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w WireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = w.Normalize()
	return nil
}
