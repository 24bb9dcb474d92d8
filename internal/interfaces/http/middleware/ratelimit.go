package middleware

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/interfaces/http/response"
	"newsletter.backend/pkg/logger"
	"newsletter.backend/pkg/redis"
)

var (
	redisIncrWindow = redis.IncrWindow
	redisTTL        = redis.TTL
)

// RateLimitMiddleware allows at most limit requests per client IP in each
// fixed window. Counters live in redis, keyed by scope; when redis is
// unavailable requests pass through.
func RateLimitMiddleware(scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("newsletter:rate_limit:%s:%s", scope, ip)

		count, err := redisIncrWindow(ctx, key, window)
		if err != nil {
			if !errors.Is(err, redis.ErrNotInitialized) {
				logger.Warn(ctx, "Rate limiter unavailable, allowing request",
					zap.String("scope", scope),
					zap.Error(err),
				)
			}
			c.Next()
			return
		}

		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(c, key, window)))
			response.Error(c, domainerrors.ErrRateLimited)
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(c *gin.Context, key string, window time.Duration) int {
	ttl, err := redisTTL(c.Request.Context(), key)
	if err != nil || ttl <= 0 {
		ttl = window
	}
	return int(math.Ceil(ttl.Seconds()))
}
