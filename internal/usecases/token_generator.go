package usecases

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"newsletter.backend/internal/config"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/pkg/crypto"
	"newsletter.backend/pkg/logger"
)

// HashProbe reports whether a token hash is already stored.
type HashProbe interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

// TokenGenerator produces capability tokens whose hashes are unique in the
// store. It holds no state besides its configuration.
type TokenGenerator struct {
	maxAttempts int
	random      func(length int) (string, error)
}

// NewTokenGenerator creates a generator retrying at most maxAttempts times,
// clamped to 5..10.
func NewTokenGenerator(maxAttempts int) *TokenGenerator {
	return &TokenGenerator{
		maxAttempts: config.ClampAttempts(maxAttempts),
		random:      crypto.GenerateRandomToken,
	}
}

// MaxAttempts returns the retry ceiling.
func (g *TokenGenerator) MaxAttempts() int {
	return g.maxAttempts
}

// Generate returns a fresh plaintext token and its hash, probing the store
// to skip hashes already taken.
func (g *TokenGenerator) Generate(ctx context.Context, probe HashProbe) (string, string, error) {
	return g.Issue(ctx, probe, nil)
}

// Issue is Generate followed by store. A store failing with
// ErrDuplicateTokenHash counts as a collision and consumes an attempt from
// the same budget.
func (g *TokenGenerator) Issue(ctx context.Context, probe HashProbe, store func(hash string) error) (string, string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		plaintext, err := g.random(crypto.TokenBytes)
		if err != nil {
			return "", "", err
		}
		hash := crypto.HashToken(plaintext)

		exists, err := probe.ExistsByHash(ctx, hash)
		if err != nil {
			return "", "", fmt.Errorf("probe token hash: %w", err)
		}
		if exists {
			g.collision(ctx, attempt, "probe")
			continue
		}

		if store != nil {
			if err := store(hash); err != nil {
				if errors.Is(err, domainerrors.ErrDuplicateTokenHash) {
					g.collision(ctx, attempt, "insert")
					continue
				}
				return "", "", err
			}
		}

		tokenGenerationAttempts.Observe(float64(attempt))
		return plaintext, hash, nil
	}

	tokenGenerationAttempts.Observe(float64(g.maxAttempts))
	logger.Error(ctx, "Token generation exhausted its retry budget",
		zap.Int("attempts", g.maxAttempts),
	)
	return "", "", domainerrors.ErrTokenGenerationExhausted
}

func (g *TokenGenerator) collision(ctx context.Context, attempt int, stage string) {
	tokenCollisions.WithLabelValues(stage).Inc()
	logger.Warn(ctx, "Token hash collision, retrying",
		zap.Int("attempt", attempt),
		zap.String("stage", stage),
	)
}
