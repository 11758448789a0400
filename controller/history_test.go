package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/config"
	"github.com/gesukichi/DeepAMARIS/dao"
	"github.com/gesukichi/DeepAMARIS/logic"
	"github.com/gesukichi/DeepAMARIS/models"
	"github.com/gesukichi/DeepAMARIS/pkg"
)

type memStore struct {
	convos map[uuid.UUID]*models.Conversation
	msgs   map[uuid.UUID][]chat.Message
}

func newMemStore() *memStore {
	return &memStore{
		convos: map[uuid.UUID]*models.Conversation{},
		msgs:   map[uuid.UUID][]chat.Message{},
	}
}

func (s *memStore) GetOrCreate(externalID string) (*models.User, error) {
	return &models.User{ID: 1, ExternalID: externalID}, nil
}

func (s *memStore) Create(userID, title string) (*models.Conversation, error) {
	c := &models.Conversation{ID: uuid.New(), UserID: userID, Title: title}
	s.convos[c.ID] = c
	return c, nil
}

func (s *memStore) GetByID(id uuid.UUID) (*models.Conversation, error) {
	if c, ok := s.convos[id]; ok {
		return c, nil
	}
	return nil, dao.ErrNotFound
}

func (s *memStore) ListByUser(userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, c := range s.convos {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memStore) Rename(id uuid.UUID, title string) error { return nil }
func (s *memStore) Touch(id uuid.UUID) error                { return nil }
func (s *memStore) Delete(id uuid.UUID) error               { return nil }

func (s *memStore) Append(conversationID uuid.UUID, msgs []chat.Message) error {
	s.msgs[conversationID] = append(s.msgs[conversationID], msgs...)
	return nil
}

func (s *memStore) ListByConversation(conversationID uuid.UUID) ([]chat.Message, error) {
	return s.msgs[conversationID], nil
}

func (s *memStore) UpdateFeedback(messageID uuid.UUID, feedback string) error { return nil }
func (s *memStore) OwnerOfMessage(messageID uuid.UUID) (string, error) {
	return "", dao.ErrNotFound
}

// toolCallingCompletion asks for a search tool call on the first turn
// request and answers plainly on the next.
type toolCallingCompletion struct {
	turnCalls int
}

func (c *toolCallingCompletion) CreateChatCompletion(ctx context.Context, req pkg.ChatCompletionRequest) (*pkg.ChatCompletionResponse, error) {
	msg := pkg.ResponseMessage{Role: chat.RoleAssistant, Content: "Generated Title"}
	if req.MaxTokens != 16 { // not the title call
		c.turnCalls++
		if c.turnCalls == 1 {
			msg = pkg.ResponseMessage{
				Role: chat.RoleAssistant,
				ToolCalls: []chat.ToolCall{{
					ID: "call_1", Type: "function",
					Function: chat.FunctionCall{Name: "search_internal_documents", Arguments: `{"query":"q"}`},
				}},
			}
		} else {
			msg = pkg.ResponseMessage{Role: chat.RoleAssistant, Content: "the final answer"}
		}
	}
	return &pkg.ChatCompletionResponse{
		ID:      "cmpl-1",
		Choices: []pkg.ChatChoice{{Message: msg, FinishReason: "stop"}},
	}, nil
}

func (c *toolCallingCompletion) CreateChatCompletionStream(ctx context.Context, req pkg.ChatCompletionRequest, handler func(*pkg.StreamChatCompletionResponse) error) error {
	panic("not used in this test")
}

type localResolver struct{}

func (localResolver) Tools() []pkg.ToolDefinition {
	return []pkg.ToolDefinition{{Type: "function", Function: pkg.ToolFunction{Name: "search_internal_documents"}}}
}

func (localResolver) ResolveToolCalls(ctx context.Context, calls []chat.ToolCall) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(calls))
	for _, c := range calls {
		out = append(out, chat.Message{
			Role: chat.RoleTool, ToolCallID: c.ID,
			Content: `{"result":"found it"}`,
			Context: `{"citations":[{"title":"doc"}]}`,
		})
	}
	return out, nil
}

func testUser(sub string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", jwt.MapClaims{"sub": sub})
		c.Next()
	}
}

func setupRouter(store *memStore) (*gin.Engine, *memStore) {
	gin.SetMode(gin.TestMode)
	cfg := config.ChatConfig{Model: "gpt-4o", SystemMessage: "sys", MaxTokens: 256, MaxToolDepth: 3}
	messageLogic := logic.NewMessageLogic(store, store, store, &toolCallingCompletion{}, localResolver{}, cfg)
	convoLogic := logic.NewConversationLogic(store, store)

	historyCtrl := NewHistoryController(messageLogic, convoLogic, false)
	convoCtrl := NewConversationController(messageLogic, false)

	r := gin.New()
	r.POST("/conversation", testUser("user-1"), convoCtrl.Conversation)
	r.POST("/history/generate", testUser("user-1"), historyCtrl.Generate)
	r.POST("/history/read", testUser("user-1"), historyCtrl.Read)
	return r, store
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateNeverReturnsToolMessages(t *testing.T) {
	r, store := setupRouter(newMemStore())

	w := postJSON(t, r, "/history/generate", gin.H{
		"messages": []gin.H{{"role": "user", "content": "where is the handbook?"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp logic.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	for _, m := range resp.Choices[0].Messages {
		assert.NotEqual(t, chat.RoleTool, m.Role)
	}
	assert.NotContains(t, w.Body.String(), `"role":"tool"`)
	assert.Equal(t, "the final answer", resp.Choices[0].Messages[len(resp.Choices[0].Messages)-1].Content)

	// The stored record keeps the tool turn the response omitted.
	convoID := uuid.MustParse(resp.HistoryMetadata.ConversationID)
	var storedRoles []string
	for _, m := range store.msgs[convoID] {
		storedRoles = append(storedRoles, m.Role)
	}
	assert.Contains(t, storedRoles, chat.RoleTool)
}

func TestReadFiltersToolMessagesFromStoredRecord(t *testing.T) {
	store := newMemStore()
	convo, _ := store.Create("user-1", "t")
	store.msgs[convo.ID] = []chat.Message{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "c1"}}},
		{Role: chat.RoleTool, ToolCallID: "c1", Content: "r"},
		{Role: chat.RoleAssistant, Content: "a"},
	}
	r, _ := setupRouter(store)

	w := postJSON(t, r, "/history/read", gin.H{"conversation_id": convo.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"role":"tool"`)

	var resp struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 3)

	// Reading never mutates the stored record.
	assert.Len(t, store.msgs[convo.ID], 4)
}

func TestConversationRejectsEmptyMessages(t *testing.T) {
	r, _ := setupRouter(newMemStore())

	w := postJSON(t, r, "/conversation", gin.H{"messages": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, r, "/conversation", gin.H{"messages": []gin.H{
		{"role": "tool", "tool_call_id": "c1", "content": "smuggled"},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationStatelessTurn(t *testing.T) {
	r, store := setupRouter(newMemStore())

	w := postJSON(t, r, "/conversation", gin.H{
		"messages": []gin.H{{"role": "user", "content": strings.Repeat("q", 10)}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp logic.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.HistoryMetadata)
	assert.Empty(t, store.msgs)
}
