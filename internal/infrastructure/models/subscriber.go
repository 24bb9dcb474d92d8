package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PreferencesJSON stores a preferences map in a JSONB (postgres) or TEXT
// (sqlite) column.
type PreferencesJSON map[string]bool

// Value implements driver.Valuer
func (p PreferencesJSON) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]bool(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *PreferencesJSON) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = PreferencesJSON{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported preferences column type %T", src)
	}

	out := PreferencesJSON{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}
	*p = out
	return nil
}

// Subscriber is the persisted subscriber row. The table name is configured
// per stage and applied by the repository.
type Subscriber struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	Email           string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	Subscribed      bool            `gorm:"not null"`
	SubscribedAt    time.Time       `gorm:"not null"`
	EmailVerified   bool            `gorm:"not null"`
	Preferences     PreferencesJSON `gorm:"type:jsonb;not null"`
	FirstName       *string         `gorm:"type:varchar(100)"`
	LastName        *string         `gorm:"type:varchar(100)"`
	UnsubscribeTime *time.Time
}
