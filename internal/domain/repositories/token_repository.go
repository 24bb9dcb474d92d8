package repositories

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"newsletter.backend/internal/domain/entities"
)

// TokenRepository defines capability token data operations. Tokens are
// addressed by the hash of their plaintext.
type TokenRepository interface {
	// Create inserts the token and sets its ID. Returns ErrDuplicateTokenHash
	// when the hash is already stored.
	Create(ctx context.Context, token *entities.Token) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	FindByHash(ctx context.Context, hash string, tokenType entities.TokenType) (*entities.Token, error)
	// MarkUsed flips used to true. Returns ErrTokenAlreadyUsed when the token
	// was consumed concurrently.
	MarkUsed(ctx context.Context, hash string) error
	// Replace rotates the subscriber's token of the given type to a new hash
	// and expiry and clears used.
	Replace(ctx context.Context, userID int64, tokenType entities.TokenType, newHash string, expiresAt null.Time) error
	// DeleteUsedBefore removes up to limit consumed single-use tokens last
	// touched before cutoff.
	DeleteUsedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
