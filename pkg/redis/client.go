package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// ErrNotInitialized is returned when no client has been configured.
var ErrNotInitialized = errors.New("redis client not initialized")

var pingClient = func(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

// Init initializes the Redis client
func Init(url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}

	if password != "" {
		opts.Password = password
	}

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pingClient(ctx, c); err != nil {
		_ = c.Close()
		return err
	}

	client = c
	return nil
}

// SetClient sets the Redis client (used for testing)
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// Close releases the client, if any.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

// IncrWindow increments the counter stored at key and returns the new value.
// The first increment arms an expiry of window, so the counter resets once the
// window has elapsed.
func IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if client == nil {
		return 0, ErrNotInitialized
	}

	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := client.PExpire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// TTL returns the remaining lifetime of key.
func TTL(ctx context.Context, key string) (time.Duration, error) {
	if client == nil {
		return 0, ErrNotInitialized
	}
	return client.PTTL(ctx, key).Result()
}
