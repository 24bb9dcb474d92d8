package models

import (
	"time"
)

// SubscriberToken is the persisted capability token row. Only the hash of
// the plaintext token is stored.
type SubscriberToken struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	UserID    int64      `gorm:"not null;uniqueIndex:idx_token_user_type"`
	TokenHash string     `gorm:"type:char(64);uniqueIndex;not null"`
	TokenType string     `gorm:"type:varchar(32);not null;uniqueIndex:idx_token_user_type"`
	ExpiresAt *time.Time `gorm:"index"`
	Used      bool       `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
