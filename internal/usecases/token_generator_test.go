package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/infrastructure/repositories"
	"newsletter.backend/internal/testutil"
	"newsletter.backend/pkg/crypto"
)

type probeFunc func(ctx context.Context, hash string) (bool, error)

func (f probeFunc) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	return f(ctx, hash)
}

func neverTaken() probeFunc {
	return func(context.Context, string) (bool, error) { return false, nil }
}

func TestNewTokenGenerator_ClampsAttempts(t *testing.T) {
	assert.Equal(t, 5, NewTokenGenerator(1).MaxAttempts())
	assert.Equal(t, 7, NewTokenGenerator(7).MaxAttempts())
	assert.Equal(t, 10, NewTokenGenerator(50).MaxAttempts())
}

func TestTokenGenerator_Generate(t *testing.T) {
	g := NewTokenGenerator(5)

	plaintext, hash, err := g.Generate(context.Background(), neverTaken())
	require.NoError(t, err)
	assert.Len(t, plaintext, crypto.TokenBytes*2)
	assert.Equal(t, crypto.HashToken(plaintext), hash)
	assert.Len(t, hash, crypto.HashLength)
}

func TestTokenGenerator_ForcedCollisionsExhaust(t *testing.T) {
	g := NewTokenGenerator(6)
	g.random = func(int) (string, error) { return "same", nil }

	var probes int
	probe := probeFunc(func(_ context.Context, hash string) (bool, error) {
		probes++
		return hash == crypto.HashToken("same"), nil
	})

	_, _, err := g.Generate(context.Background(), probe)
	assert.ErrorIs(t, err, domainerrors.ErrTokenGenerationExhausted)
	assert.Equal(t, 6, probes)
}

func TestTokenGenerator_RecoversAfterCollision(t *testing.T) {
	g := NewTokenGenerator(5)
	seq := []string{"taken", "taken", "free"}
	g.random = func(int) (string, error) {
		v := seq[0]
		seq = seq[1:]
		return v, nil
	}
	probe := probeFunc(func(_ context.Context, hash string) (bool, error) {
		return hash == crypto.HashToken("taken"), nil
	})

	plaintext, _, err := g.Generate(context.Background(), probe)
	require.NoError(t, err)
	assert.Equal(t, "free", plaintext)
}

func TestTokenGenerator_InsertCollisionsShareBudget(t *testing.T) {
	g := NewTokenGenerator(5)

	var stores int
	_, _, err := g.Issue(context.Background(), neverTaken(), func(string) error {
		stores++
		return fmt.Errorf("insert: %w", domainerrors.ErrDuplicateTokenHash)
	})
	assert.ErrorIs(t, err, domainerrors.ErrTokenGenerationExhausted)
	assert.Equal(t, 5, stores)
}

func TestTokenGenerator_Errors(t *testing.T) {
	t.Run("probe error", func(t *testing.T) {
		g := NewTokenGenerator(5)
		_, _, err := g.Generate(context.Background(), probeFunc(func(context.Context, string) (bool, error) {
			return false, assert.AnError
		}))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("random error", func(t *testing.T) {
		g := NewTokenGenerator(5)
		g.random = func(int) (string, error) { return "", errors.New("entropy") }
		_, _, err := g.Generate(context.Background(), neverTaken())
		assert.EqualError(t, err, "entropy")
	})

	t.Run("store error is not retried", func(t *testing.T) {
		g := NewTokenGenerator(5)
		var stores int
		_, _, err := g.Issue(context.Background(), neverTaken(), func(string) error {
			stores++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, stores)
	})

	t.Run("canceled context", func(t *testing.T) {
		g := NewTokenGenerator(5)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := g.Generate(ctx, neverTaken())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTokenGenerator_ConcurrentIssueIsUnique(t *testing.T) {
	db := testutil.NewDB(t)
	subs := repositories.NewSubscriberRepository(db, testutil.Tables.Subscribers)
	tokens := repositories.NewTokenRepository(db, testutil.Tables.Tokens)
	g := NewTokenGenerator(10)

	const workers = 16
	ids := make([]int64, workers)
	for i := range ids {
		s := &entities.Subscriber{Email: fmt.Sprintf("u%d@example.com", i), Subscribed: true, Preferences: entities.DefaultPreferences()}
		require.NoError(t, subs.Create(context.Background(), s))
		ids[i] = s.ID
	}

	hashes := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, hash, err := g.Issue(context.Background(), tokens, func(hash string) error {
				return tokens.Create(context.Background(), &entities.Token{
					UserID:    ids[i],
					TokenHash: hash,
					TokenType: entities.TokenTypeEmailVerification,
				})
			})
			assert.NoError(t, err)
			hashes[i] = hash
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, h := range hashes {
		assert.False(t, seen[h], "duplicate hash %s", h)
		seen[h] = true
	}
	assert.Equal(t, int64(workers), testutil.CountRows(t, db, testutil.Tables.Tokens, ""))
}
