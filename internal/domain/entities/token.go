package entities

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// TokenType identifies which flow a capability token unlocks
type TokenType string

const (
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypeAccountCompletion TokenType = "account_completion"
	TokenTypePreferences       TokenType = "preferences"
)

// Valid reports whether t is a known token type
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeEmailVerification, TokenTypeAccountCompletion, TokenTypePreferences:
		return true
	}
	return false
}

// FlowOrigin names the page a regeneration request came from
type FlowOrigin string

const (
	OriginVerifyEmail     FlowOrigin = "verify-email"
	OriginCompleteAccount FlowOrigin = "complete-account"
)

// TokenType returns the token type a regeneration from o reissues.
func (o FlowOrigin) TokenType() (TokenType, bool) {
	switch o {
	case OriginVerifyEmail:
		return TokenTypeEmailVerification, true
	case OriginCompleteAccount:
		return TokenTypeAccountCompletion, true
	}
	return "", false
}

// Token is a stored capability token. Only the hash of the plaintext is kept.
type Token struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	TokenHash string    `json:"-"`
	TokenType TokenType `json:"tokenType"`
	ExpiresAt null.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsExpired reports whether the token is past its expiry at now. Tokens
// without an expiry never expire.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Valid && now.After(t.ExpiresAt.Time)
}
