package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"newsletter.backend/internal/config"
	"newsletter.backend/pkg/logger"
)

// maxBatchesPerRun bounds how long a single run may hold the database.
const maxBatchesPerRun = 20

type usedTokenPurger interface {
	DeleteUsedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// TokenCleanupJob periodically purges consumed single-use tokens. Unused
// tokens are kept, expired or not, so they can still be regenerated.
type TokenCleanupJob struct {
	repo      usedTokenPurger
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewTokenCleanupJob(repo usedTokenPurger, cfg config.JobsConfig) *TokenCleanupJob {
	return &TokenCleanupJob{
		repo:      repo,
		interval:  cfg.TokenCleanupInterval,
		retention: cfg.TokenCleanupRetention,
		batchSize: cfg.TokenCleanupBatchSize,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
}

func (j *TokenCleanupJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		logger.Info(ctx, "Token cleanup job disabled")
		return
	}
	logger.Info(ctx, "Starting token cleanup job",
		zap.Duration("interval", j.interval),
		zap.Duration("retention", j.retention),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Token cleanup job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Token cleanup job stopped")
			return
		case <-ticker.C:
			j.purgeUsedTokens(ctx)
		}
	}
}

func (j *TokenCleanupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *TokenCleanupJob) purgeUsedTokens(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)

	var total int64
	for batch := 0; batch < maxBatchesPerRun; batch++ {
		if ctx.Err() != nil {
			break
		}
		n, err := j.repo.DeleteUsedBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			logger.Error(ctx, "Failed to purge used tokens", zap.Error(err))
			break
		}
		total += n
		if n < int64(j.batchSize) {
			break
		}
	}

	if total > 0 {
		logger.Info(ctx, "Purged used tokens", zap.Int64("count", total), zap.Time("cutoff", cutoff))
	}
	return total
}
