package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores hashed API credentials owned by a single user.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     string       `gorm:"column:user_id;type:text;not null;index"`
	KeyID      string       `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name       string       `gorm:"type:text;not null"`
	KeyHash    string       `gorm:"column:key_hash;type:text;not null;uniqueIndex"`
	IsActive   bool         `gorm:"column:is_active;not null"`
	CreatedAt  time.Time    `gorm:"not null"`
	UpdatedAt  time.Time    `gorm:"not null"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time   `gorm:"column:expires_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
