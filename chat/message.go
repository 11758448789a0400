package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Roles accepted in a conversation. Anything else is rejected at
// construction time and silently dropped during sanitization.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// ErrMalformedMessage marks a structural violation in a single message,
// such as a tool message without a tool_call_id.
var ErrMalformedMessage = errors.New("malformed message")

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		return true
	}
	return false
}

// ImageURL references an image included as a content part.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multi-part message content.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// FunctionCall carries the callee name and an opaque arguments payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation emitted by an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Message is one turn in a conversation. Content is a tagged union:
// either Content (plain text) or Parts is set, never both. Context and
// Feedback are UI/storage annotations and are never forwarded to the
// completion engine.
type Message struct {
	ID         string        `json:"id,omitempty"`
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"-"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Context    string        `json:"context,omitempty"`
	Feedback   string        `json:"feedback,omitempty"`
}

type messageAlias Message

type messageWire struct {
	messageAlias
	Content json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON emits Content as a plain string or as a part array,
// whichever side of the union is populated.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{messageAlias: messageAlias(m)}
	w.messageAlias.Content = ""
	if len(m.Parts) > 0 {
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return nil, err
		}
		w.Content = parts
	} else if m.Content != "" {
		text, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = text
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts both content encodings: a JSON string or an
// array of typed parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message(w.messageAlias)
	m.Content = ""
	m.Parts = nil
	if len(w.Content) == 0 {
		return nil
	}
	switch w.Content[0] {
	case '[':
		if err := json.Unmarshal(w.Content, &m.Parts); err != nil {
			return fmt.Errorf("%w: bad content parts: %v", ErrMalformedMessage, err)
		}
	case 'n': // null
	default:
		if err := json.Unmarshal(w.Content, &m.Content); err != nil {
			return fmt.Errorf("%w: bad content: %v", ErrMalformedMessage, err)
		}
	}
	return nil
}

// Validate checks the role-specific structural rules for newly authored
// messages. Stored legacy rows are not validated this way; the sanitizer
// drops them defensively instead.
func (m *Message) Validate() error {
	if !ValidRole(m.Role) {
		return fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, m.Role)
	}
	if m.Content != "" && len(m.Parts) > 0 {
		return fmt.Errorf("%w: content and parts are mutually exclusive", ErrMalformedMessage)
	}
	hasContent := m.Content != "" || len(m.Parts) > 0
	switch m.Role {
	case RoleTool:
		if m.ToolCallID == "" {
			return fmt.Errorf("%w: tool message missing tool_call_id", ErrMalformedMessage)
		}
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("%w: tool message must not carry tool_calls", ErrMalformedMessage)
		}
		if !hasContent {
			return fmt.Errorf("%w: tool message missing content", ErrMalformedMessage)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return fmt.Errorf("%w: assistant message must not carry tool_call_id", ErrMalformedMessage)
		}
		seen := make(map[string]struct{}, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			if tc.ID == "" {
				return fmt.Errorf("%w: tool_calls[%d] missing id", ErrMalformedMessage, i)
			}
			if _, dup := seen[tc.ID]; dup {
				return fmt.Errorf("%w: duplicate tool_call id %q", ErrMalformedMessage, tc.ID)
			}
			seen[tc.ID] = struct{}{}
		}
		// An assistant turn may be pure tool invocation with no text.
		if !hasContent && len(m.ToolCalls) == 0 {
			return fmt.Errorf("%w: assistant message missing content", ErrMalformedMessage)
		}
	default:
		if m.ToolCallID != "" {
			return fmt.Errorf("%w: %s message must not carry tool_call_id", ErrMalformedMessage, m.Role)
		}
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("%w: %s message must not carry tool_calls", ErrMalformedMessage, m.Role)
		}
		if !hasContent {
			return fmt.Errorf("%w: %s message missing content", ErrMalformedMessage, m.Role)
		}
	}
	return nil
}

// NewMessage builds a validated plain-text message.
func NewMessage(role, content string) (Message, error) {
	m := Message{Role: role, Content: content}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewToolMessage builds a validated tool result message.
func NewToolMessage(callID, content string) (Message, error) {
	m := Message{Role: RoleTool, ToolCallID: callID, Content: content}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewAssistantMessage builds a validated assistant message, optionally
// carrying tool invocations.
func NewAssistantMessage(content string, toolCalls []ToolCall) (Message, error) {
	m := Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Text flattens the content union to displayable text.
func (m *Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
