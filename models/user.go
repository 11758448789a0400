package models

import (
	"time"
)

// User owns conversations. ExternalID is the subject claim issued by
// the identity provider; the backend never manages credentials itself.
type User struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
