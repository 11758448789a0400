package logic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/models"
	"github.com/gesukichi/DeepAMARIS/pkg"
)

// ErrInvalidRequest marks a client payload rejected before the flow has
// any side effects.
var ErrInvalidRequest = errors.New("invalid request")

// WarningHistoryPersistFailed is attached to a successful turn whose
// history save failed. The answer is still delivered; the caller may
// surface the warning.
const WarningHistoryPersistFailed = "history_persist_failed"

// UserStore is the persistence surface for users.
type UserStore interface {
	GetOrCreate(externalID string) (*models.User, error)
}

// ConversationStore is the persistence surface for conversation metadata.
type ConversationStore interface {
	Create(userID, title string) (*models.Conversation, error)
	GetByID(id uuid.UUID) (*models.Conversation, error)
	ListByUser(userID string) ([]models.Conversation, error)
	Rename(id uuid.UUID, title string) error
	Touch(id uuid.UUID) error
	Delete(id uuid.UUID) error
}

// MessageStore is the persistence surface for message sequences. It
// stores and returns the full unsanitized sequence.
type MessageStore interface {
	Append(conversationID uuid.UUID, msgs []chat.Message) error
	ListByConversation(conversationID uuid.UUID) ([]chat.Message, error)
	UpdateFeedback(messageID uuid.UUID, feedback string) error
	OwnerOfMessage(messageID uuid.UUID) (string, error)
}

// CompletionClient is the completion engine surface.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req pkg.ChatCompletionRequest) (*pkg.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req pkg.ChatCompletionRequest, handler func(*pkg.StreamChatCompletionResponse) error) error
}

// ToolResolver resolves assistant tool calls into paired tool messages.
type ToolResolver interface {
	Tools() []pkg.ToolDefinition
	ResolveToolCalls(ctx context.Context, calls []chat.ToolCall) ([]chat.Message, error)
}

// HistoryMetadata identifies the conversation a turn belongs to.
type HistoryMetadata struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Date           time.Time `json:"date"`
}

// ChatChoice carries the client-facing messages of one completion choice.
type ChatChoice struct {
	Messages     []chat.Message `json:"messages"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// ChatResponse is the turn response envelope returned to controllers.
type ChatResponse struct {
	ID              string           `json:"id"`
	Object          string           `json:"object"`
	Created         int64            `json:"created"`
	Model           string           `json:"model"`
	Choices         []ChatChoice     `json:"choices"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
}
