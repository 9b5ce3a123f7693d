package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authentication record behind a storefront account.
type Identity struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash     string     `gorm:"column:password_hash;not null"`
	FullName         string     `gorm:"column:full_name;not null;default:''"`
	Phone            *string    `gorm:"column:phone"`
	EmailConfirmedAt *time.Time `gorm:"column:email_confirmed_at"`
	LastSignInAt     *time.Time `gorm:"column:last_sign_in_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Identity) TableName() string { return "identities" }
