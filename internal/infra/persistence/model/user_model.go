// Package model holds the GORM persistence models that mirror the SQL schema.
package model

import (
	"time"

	"github.com/google/uuid"
)

// UserModel mirrors the 'users' table. IDs are assigned by the application.
type UserModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email           string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash    *string   `gorm:"type:varchar(255)"`
	Name            string    `gorm:"type:varchar(100);not null"`
	PreferredUnits  string    `gorm:"type:varchar(16);not null;default:metric"`
	IsActive        bool      `gorm:"not null;default:true"`
	AuthProvider    string    `gorm:"type:varchar(32);not null"`
	ProviderSubject *string   `gorm:"type:varchar(255);index:idx_users_provider_subject"`
	AvatarURL       *string   `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}
