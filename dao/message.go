package dao

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gesukichi/DeepAMARIS/chat"
	"github.com/gesukichi/DeepAMARIS/models"
)

// MessageDAO handles message-related database operations. It always
// stores and returns the full unsanitized sequence, tool messages
// included; it knows nothing about sanitization rules.
type MessageDAO struct {
	db *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{db: db}
}

// Append adds messages to a conversation in order
func (d *MessageDAO) Append(conversationID uuid.UUID, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, models.FromChatMessage(conversationID, m))
	}
	if err := d.db.Create(&rows).Error; err != nil {
		return translate(err)
	}
	return nil
}

// ListByConversation retrieves the ordered message sequence of a conversation
func (d *MessageDAO) ListByConversation(conversationID uuid.UUID) ([]chat.Message, error) {
	var rows []models.Message
	if err := d.db.Where("conversation_id = ?", conversationID).
		Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	msgs := make([]chat.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].ToChatMessage())
	}
	return msgs, nil
}

// UpdateFeedback stores user feedback on a single message
func (d *MessageDAO) UpdateFeedback(messageID uuid.UUID, feedback string) error {
	res := d.db.Model(&models.Message{}).Where("uuid = ?", messageID).
		Update("feedback", feedback)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnerOfMessage returns the conversation owner of a message, for
// access checks on feedback updates.
func (d *MessageDAO) OwnerOfMessage(messageID uuid.UUID) (string, error) {
	var row struct {
		UserID string
	}
	err := d.db.Model(&models.Message{}).
		Select("conversations.user_id").
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.uuid = ?", messageID).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", ErrNotFound
		}
		return "", translate(err)
	}
	return row.UserID, nil
}
