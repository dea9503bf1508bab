package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
)

// User represents a client or staff account.
type User struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	Email         string             `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash  string             `gorm:"column:password_hash;not null"`
	FirstName     string             `gorm:"column:first_name;not null"`
	LastName      string             `gorm:"column:last_name;not null"`
	Company       *string            `gorm:"column:company"`
	Phone         *string            `gorm:"column:phone"`
	Roles         dbtypes.StringList `gorm:"column:roles;type:jsonb;not null;default:'[]'"`
	AuthMethod    string             `gorm:"column:auth_method;not null;default:'password'"`
	EmailVerified bool               `gorm:"column:email_verified;not null;default:false"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Roles == nil {
		u.Roles = dbtypes.StringList{}
	}
	return nil
}

// FullName joins first and last name for notification salutations.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
