package logic

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/dao"
	"github.com/gesukichi/DeepAMARIS/models"
)

// ConversationLogic handles conversation history operations: listing,
// reading, renaming, deleting and the history-update path that persists
// an already-completed exchange.
type ConversationLogic struct {
	convos   ConversationStore
	messages MessageStore
}

func NewConversationLogic(convos ConversationStore, messages MessageStore) *ConversationLogic {
	return &ConversationLogic{convos: convos, messages: messages}
}

// owned loads a conversation and checks ownership. A conversation that
// belongs to someone else is indistinguishable from a missing one.
func (l *ConversationLogic) owned(userID string, conversationID uuid.UUID) (*models.Conversation, error) {
	convo, err := l.convos.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if convo.UserID != userID {
		return nil, dao.ErrNotFound
	}
	return convo, nil
}

// List returns a user's conversations, most recently updated first
func (l *ConversationLogic) List(userID string) ([]models.Conversation, error) {
	return l.convos.ListByUser(userID)
}

// Read returns the full stored message sequence of a conversation. The
// caller applies the client-facing filter before the payload leaves the
// service; the stored record itself keeps every role.
func (l *ConversationLogic) Read(userID string, conversationID uuid.UUID) (*models.Conversation, []chat.Message, error) {
	convo, err := l.owned(userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := l.messages.ListByConversation(conversationID)
	if err != nil {
		return nil, nil, err
	}
	return convo, msgs, nil
}

// AppendExchange persists the tail of a completed exchange: any tool
// messages produced during the turn followed by the final assistant
// message. Used by the history-update path, where the completion itself
// happened in an earlier request.
func (l *ConversationLogic) AppendExchange(userID string, conversationID uuid.UUID, msgs []chat.Message) error {
	if _, err := l.owned(userID, conversationID); err != nil {
		return err
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != chat.RoleAssistant {
		return fmt.Errorf("%w: exchange must end with an assistant message", ErrInvalidRequest)
	}

	// Walk back over the trailing tool messages that belong to this
	// exchange; everything earlier was persisted by previous turns.
	start := len(msgs) - 1
	for start > 0 && msgs[start-1].Role == chat.RoleTool {
		start--
	}
	tail := msgs[start:]
	for i := range tail {
		if err := tail[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if err := l.messages.Append(conversationID, tail); err != nil {
		return err
	}
	return l.convos.Touch(conversationID)
}

// Rename updates a conversation title
func (l *ConversationLogic) Rename(userID string, conversationID uuid.UUID, title string) error {
	if _, err := l.owned(userID, conversationID); err != nil {
		return err
	}
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	return l.convos.Rename(conversationID, title)
}

// Delete removes a conversation and its messages
func (l *ConversationLogic) Delete(userID string, conversationID uuid.UUID) error {
	if _, err := l.owned(userID, conversationID); err != nil {
		return err
	}
	return l.convos.Delete(conversationID)
}

// UpdateMessageFeedback stores feedback on a message after verifying
// the message belongs to one of the user's conversations.
func (l *ConversationLogic) UpdateMessageFeedback(userID string, messageID uuid.UUID, feedback string) error {
	owner, err := l.messages.OwnerOfMessage(messageID)
	if err != nil {
		return err
	}
	if owner != userID {
		return dao.ErrNotFound
	}
	return l.messages.UpdateFeedback(messageID, feedback)
}
