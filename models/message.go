package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gesukichi/DeepAMARIS/chat"
)

// Message is one stored turn of a conversation. The full role range is
// persisted, tool messages and citation context included; filtering for
// the completion engine or the client happens at those boundaries, never
// here.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UUID           uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Role           string    `gorm:"not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	ToolCalls      string    `gorm:"type:text" json:"tool_calls,omitempty"`
	ToolCallID     string    `json:"tool_call_id,omitempty"`
	Context        string    `gorm:"type:text" json:"context,omitempty"`
	Feedback       string    `json:"feedback,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromChatMessage builds a storable row from a domain message.
func FromChatMessage(conversationID uuid.UUID, m chat.Message) Message {
	row := Message{
		UUID:           uuid.New(),
		ConversationID: conversationID,
		Role:           m.Role,
		Content:        m.Content,
		ToolCallID:     m.ToolCallID,
		Context:        m.Context,
		Feedback:       m.Feedback,
	}
	if m.ID != "" {
		if id, err := uuid.Parse(m.ID); err == nil {
			row.UUID = id
		}
	}
	if len(m.Parts) > 0 {
		// Multi-part content is stored in its wire encoding.
		if raw, err := json.Marshal(m.Parts); err == nil {
			row.Content = string(raw)
		}
	}
	if len(m.ToolCalls) > 0 {
		if raw, err := json.Marshal(m.ToolCalls); err == nil {
			row.ToolCalls = string(raw)
		}
	}
	return row
}

// ToChatMessage converts a stored row back into the domain message. A
// row with an undecodable tool_calls payload keeps its other fields;
// the sanitizer handles the rest defensively.
func (m *Message) ToChatMessage() chat.Message {
	out := chat.Message{
		ID:         m.UUID.String(),
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Context:    m.Context,
		Feedback:   m.Feedback,
	}
	if len(m.Content) > 0 && m.Content[0] == '[' {
		var parts []chat.ContentPart
		if err := json.Unmarshal([]byte(m.Content), &parts); err == nil && len(parts) > 0 && parts[0].Type != "" {
			out.Content = ""
			out.Parts = parts
		}
	}
	if m.ToolCalls != "" {
		var calls []chat.ToolCall
		if err := json.Unmarshal([]byte(m.ToolCalls), &calls); err == nil {
			out.ToolCalls = calls
		}
	}
	return out
}
