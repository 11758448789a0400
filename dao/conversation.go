package dao

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gesukichi/DeepAMARIS/models"
)

// ConversationDAO handles conversation-related database operations.
// Concurrent updates to the same conversation are last-write-wins; the
// store performs no locking.
type ConversationDAO struct {
	db *gorm.DB
}

func NewConversationDAO(db *gorm.DB) *ConversationDAO {
	return &ConversationDAO{db: db}
}

// Create creates a new conversation for a user
func (d *ConversationDAO) Create(userID, title string) (*models.Conversation, error) {
	convo := &models.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}
	if err := d.db.Create(convo).Error; err != nil {
		return nil, translate(err)
	}
	return convo, nil
}

// GetByID retrieves a conversation by id
func (d *ConversationDAO) GetByID(id uuid.UUID) (*models.Conversation, error) {
	var convo models.Conversation
	if err := d.db.Where("id = ?", id).First(&convo).Error; err != nil {
		return nil, translate(err)
	}
	return &convo, nil
}

// ListByUser retrieves all conversations of a user, most recent first
func (d *ConversationDAO) ListByUser(userID string) ([]models.Conversation, error) {
	var convos []models.Conversation
	if err := d.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convos).Error; err != nil {
		return nil, translate(err)
	}
	return convos, nil
}

// Rename updates a conversation's title
func (d *ConversationDAO) Rename(id uuid.UUID, title string) error {
	res := d.db.Model(&models.Conversation{}).Where("id = ?", id).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch bumps a conversation's updated_at timestamp
func (d *ConversationDAO) Touch(id uuid.UUID) error {
	res := d.db.Model(&models.Conversation{}).Where("id = ?", id).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation and its messages
func (d *ConversationDAO) Delete(id uuid.UUID) error {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate(err)
}
