package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/infrastructure/models"
)

// TokenRepository implements repositories.TokenRepository
type TokenRepository struct {
	db    *gorm.DB
	table string
	now   func() time.Time
}

// NewTokenRepository creates a token repository bound to table
func NewTokenRepository(db *gorm.DB, table string) *TokenRepository {
	return &TokenRepository{db: db, table: table, now: time.Now}
}

func (r *TokenRepository) query(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).Table(r.table)
}

// Create inserts a token. The insert runs in a savepoint when a transaction
// is active so a hash collision leaves the transaction usable for a retry.
func (r *TokenRepository) Create(ctx context.Context, token *entities.Token) error {
	now := r.now().UTC()
	m := &models.SubscriberToken{
		UserID:    token.UserID,
		TokenHash: token.TokenHash,
		TokenType: string(token.TokenType),
		ExpiresAt: token.ExpiresAt.Ptr(),
		Used:      token.Used,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Table(r.table).Create(m).Error
	})
	if err != nil {
		return r.translateWriteError(err)
	}

	token.ID = m.ID
	token.CreatedAt = m.CreatedAt
	token.UpdatedAt = m.UpdatedAt
	return nil
}

// ExistsByHash reports whether any token has the given hash
func (r *TokenRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.query(ctx).Where("token_hash = ?", hash).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByHash gets a token by hash and type. The row is locked when ctx was
// marked with UnitOfWork.WithLock.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string, tokenType entities.TokenType) (*entities.Token, error) {
	var m models.SubscriberToken
	err := lockForUpdate(ctx, r.query(ctx)).
		Where("token_hash = ? AND token_type = ?", hash, string(tokenType)).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toTokenEntity(&m), nil
}

// MarkUsed consumes a token. Only an unused token can be consumed.
func (r *TokenRepository) MarkUsed(ctx context.Context, hash string) error {
	result := r.query(ctx).
		Where("token_hash = ? AND used = ?", hash, false).
		Updates(map[string]interface{}{"used": true, "updated_at": r.now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("mark token used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrTokenAlreadyUsed
	}
	return nil
}

// Replace rotates the subscriber's token of tokenType in place
func (r *TokenRepository) Replace(ctx context.Context, userID int64, tokenType entities.TokenType, newHash string, expiresAt null.Time) error {
	var rows int64
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Table(r.table).
			Where("user_id = ? AND token_type = ?", userID, string(tokenType)).
			Updates(map[string]interface{}{
				"token_hash": newHash,
				"expires_at": expiresAt,
				"used":       false,
				"updated_at": r.now().UTC(),
			})
		rows = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return r.translateWriteError(err)
	}
	if rows == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// DeleteUsedBefore purges consumed single-use tokens. Preferences tokens are
// reusable and never purged.
func (r *TokenRepository) DeleteUsedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	q := fmt.Sprintf(
		"DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s WHERE used = ? AND token_type <> ? AND updated_at < ? ORDER BY id LIMIT ?)",
		r.table,
	)
	result := GetDB(ctx, r.db).Exec(q, true, string(entities.TokenTypePreferences), cutoff.UTC(), limit)
	if result.Error != nil {
		return 0, fmt.Errorf("delete used tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *TokenRepository) translateWriteError(err error) error {
	dup, detail := uniqueViolation(err)
	if !dup {
		return err
	}
	// (user_id, token_type) conflicts are programming errors, not collisions.
	if detail == "" || strings.Contains(detail, "token_hash") {
		return domainerrors.ErrDuplicateTokenHash
	}
	return fmt.Errorf("%w: %s", domainerrors.ErrAlreadyExists, detail)
}

func toTokenEntity(m *models.SubscriberToken) *entities.Token {
	return &entities.Token{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		TokenType: entities.TokenType(m.TokenType),
		ExpiresAt: null.TimeFromPtr(m.ExpiresAt),
		Used:      m.Used,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
