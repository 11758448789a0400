package dao

import (
	"errors"

	"gorm.io/gorm"

	"github.com/gesukichi/DeepAMARIS/models"
)

// UserDAO handles user-related database operations
type UserDAO struct {
	db *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{db: db}
}

// GetOrCreate retrieves the user for an identity-provider subject,
// creating the row on first sight.
func (d *UserDAO) GetOrCreate(externalID string) (*models.User, error) {
	var user models.User
	err := d.db.Where("external_id = ?", externalID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate(err)
	}
	user = models.User{ExternalID: externalID}
	if err := d.db.Create(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetByExternalID retrieves a user by identity-provider subject
func (d *UserDAO) GetByExternalID(externalID string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
