package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnknownRole(t *testing.T) {
	_, err := NewMessage("moderator", "hi")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestValidateToolRequiresCallID(t *testing.T) {
	m := Message{Role: RoleTool, Content: "result"}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMessage)

	_, err := NewToolMessage("c1", "result")
	assert.NoError(t, err)
}

func TestValidateToolCallIDsUniqueAndPresent(t *testing.T) {
	_, err := NewAssistantMessage("", []ToolCall{{ID: "c1"}, {ID: "c1"}})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = NewAssistantMessage("", []ToolCall{{ID: ""}})
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = NewAssistantMessage("", []ToolCall{{ID: "c1"}, {ID: "c2"}})
	assert.NoError(t, err)
}

func TestValidateContentRequired(t *testing.T) {
	_, err := NewMessage(RoleUser, "")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	// Assistant may have empty content only when invoking tools.
	m := Message{Role: RoleAssistant}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMessage)
	m.ToolCalls = []ToolCall{{ID: "c1"}}
	assert.NoError(t, m.Validate())
}

func TestValidateCrossRoleFields(t *testing.T) {
	m := Message{Role: RoleUser, Content: "q", ToolCallID: "c1"}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMessage)

	m = Message{Role: RoleUser, Content: "q", ToolCalls: []ToolCall{{ID: "c1"}}}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMessage)

	m = Message{Role: RoleTool, ToolCallID: "c1", Content: "r", ToolCalls: []ToolCall{{ID: "c2"}}}
	assert.ErrorIs(t, m.Validate(), ErrMalformedMessage)
}

func TestContentUnionStringRoundTrip(t *testing.T) {
	in := Message{Role: RoleUser, Content: "hello"}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, string(raw))

	var out Message
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestContentUnionParts(t *testing.T) {
	raw := []byte(`{
		"role": "user",
		"content": [
			{"type": "text", "text": "what is in this image?"},
			{"type": "image_url", "image_url": {"url": "https://example.com/a.png"}}
		]
	}`)
	var m Message
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Len(t, m.Parts, 2)
	assert.Empty(t, m.Content)
	assert.Equal(t, "what is in this image?", m.Parts[0].Text)
	assert.Equal(t, "https://example.com/a.png", m.Parts[1].ImageURL.URL)
	assert.NoError(t, m.Validate())

	// Re-marshalling keeps the array encoding.
	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"image_url"`)
}

func TestUnmarshalToolCallMessage(t *testing.T) {
	raw := []byte(`{
		"role": "assistant",
		"content": null,
		"tool_calls": [
			{"id": "call_abc", "type": "function",
			 "function": {"name": "search_internal_documents", "arguments": "{\"query\":\"vacation policy\"}"}}
		]
	}`)
	var m Message
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Len(t, m.ToolCalls, 1)
	assert.Equal(t, "call_abc", m.ToolCalls[0].ID)
	assert.Equal(t, "search_internal_documents", m.ToolCalls[0].Function.Name)
	assert.NoError(t, m.Validate())
}

func TestTextFlattensParts(t *testing.T) {
	m := Message{Role: RoleUser, Parts: []ContentPart{
		{Type: "text", Text: "a"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "u"}},
		{Type: "text", Text: "b"},
	}}
	assert.Equal(t, "ab", m.Text())
}
