package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesukichi/DeepAMARIS/chat"
)

func TestMessageRowRoundTrip(t *testing.T) {
	convoID := uuid.New()
	in := chat.Message{
		Role: chat.RoleAssistant,
		ToolCalls: []chat.ToolCall{{
			ID: "call_1", Type: "function",
			Function: chat.FunctionCall{Name: "search_internal_documents", Arguments: `{"query":"x"}`},
		}},
	}

	row := FromChatMessage(convoID, in)
	assert.Equal(t, convoID, row.ConversationID)
	assert.NotEqual(t, uuid.Nil, row.UUID)
	require.NotEmpty(t, row.ToolCalls)

	out := row.ToChatMessage()
	assert.Equal(t, in.Role, out.Role)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, `{"query":"x"}`, out.ToolCalls[0].Function.Arguments)
	assert.Equal(t, row.UUID.String(), out.ID)
}

func TestMessageRowKeepsAnnotations(t *testing.T) {
	convoID := uuid.New()
	in := chat.Message{
		Role:       chat.RoleTool,
		ToolCallID: "call_1",
		Content:    `{"result":"r"}`,
		Context:    `{"citations":[{"title":"doc"}]}`,
	}

	row := FromChatMessage(convoID, in)
	out := row.ToChatMessage()
	assert.Equal(t, in.ToolCallID, out.ToolCallID)
	assert.Equal(t, in.Context, out.Context)
}

func TestMessageRowMultiPartContent(t *testing.T) {
	convoID := uuid.New()
	in := chat.Message{
		Role: chat.RoleUser,
		Parts: []chat.ContentPart{
			{Type: "text", Text: "describe"},
			{Type: "image_url", ImageURL: &chat.ImageURL{URL: "https://example.com/a.png"}},
		},
	}

	row := FromChatMessage(convoID, in)
	out := row.ToChatMessage()
	require.Len(t, out.Parts, 2)
	assert.Empty(t, out.Content)
	assert.Equal(t, "describe", out.Parts[0].Text)
}

func TestMessageRowCorruptToolCallsDegrades(t *testing.T) {
	row := Message{
		UUID:           uuid.New(),
		ConversationID: uuid.New(),
		Role:           chat.RoleAssistant,
		Content:        "a",
		ToolCalls:      "{not json",
	}
	out := row.ToChatMessage()
	assert.Empty(t, out.ToolCalls)
	assert.Equal(t, "a", out.Content)
}

func TestMessageRowKeepsClientMessageID(t *testing.T) {
	id := uuid.New()
	row := FromChatMessage(uuid.New(), chat.Message{
		ID: id.String(), Role: chat.RoleUser, Content: "q",
	})
	assert.Equal(t, id, row.UUID)
}
