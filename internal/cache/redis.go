package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/oggyb/muzz-connect/internal/config"
)

// likeGenTTL outlives any in-flight count read by a wide margin.
const likeGenTTL = 24 * time.Hour

// ErrUnavailable is returned while the breaker is open; callers fall back to the DB.
var ErrUnavailable = errors.New("cache unavailable")

type RedisCache struct {
	Client *redis.Client

	breaker *gobreaker.CircuitBreaker[any]
	ttl     time.Duration
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	ttl := cfg.Redis.LikeCountTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisCache{
		Client:  redis.NewClient(opts),
		breaker: newBreaker("redis"),
		ttl:     ttl,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("cache circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// a miss is a healthy answer
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
}

// execute runs fn through the breaker and restores the concrete result type.
func execute[T any](c *RedisCache, fn func() (T, error)) (T, error) {
	res, err := c.breaker.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	v, _ := res.(T)
	return v, err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return execute(c, func() (string, error) { return c.Client.Get(ctx, key).Result() })
}

// KeyForLikeCount generates Redis key for a user's incoming-like count
func (c *RedisCache) KeyForLikeCount(userID string) string {
	return fmt.Sprintf("likes:count:%s", userID)
}

// keyForLikeGen holds a counter bumped on every invalidation. A reader only
// writes a DB count back while the generation it started from is current.
func (c *RedisCache) keyForLikeGen(userID string) string {
	return fmt.Sprintf("likes:gen:%s", userID)
}

// LikeCountGeneration returns the current invalidation generation; 0 when
// none was recorded.
func (c *RedisCache) LikeCountGeneration(ctx context.Context, userID string) (int64, error) {
	val, err := c.Get(ctx, c.keyForLikeGen(userID))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad like count generation %q: %w", val, err)
	}
	return n, nil
}

// SetLikeCount stores count unless the generation moved past gen, in which
// case the value is stale and nothing is written. It reports whether the
// count was stored.
func (c *RedisCache) SetLikeCount(ctx context.Context, userID string, gen, count int64) (bool, error) {
	genKey := c.keyForLikeGen(userID)
	countKey := c.KeyForLikeCount(userID)

	return execute(c, func() (bool, error) {
		stored := false
		err := c.Client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, genKey).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if cur != gen {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				// Always refresh TTL when updating
				p.Set(ctx, countKey, count, c.ttl)
				return nil
			})
			stored = err == nil
			return err
		}, genKey)
		if errors.Is(err, redis.TxFailedErr) {
			// invalidated while we were writing
			return false, nil
		}
		return stored, err
	})
}

// GetLikeCount returns the cached count and whether it was present.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID string) (int64, bool, error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	// refresh TTL on access
	_, _ = execute(c, func() (bool, error) { return c.Client.Expire(ctx, key, c.ttl).Result() })
	return n, true, nil
}

// InvalidateLikeCount drops the cached count and bumps the generation so an
// in-flight repopulation from an older DB read is discarded.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userID string) error {
	genKey := c.keyForLikeGen(userID)
	_, err := execute(c, func() ([]redis.Cmder, error) {
		return c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Incr(ctx, genKey)
			p.Expire(ctx, genKey, likeGenTTL)
			p.Del(ctx, c.KeyForLikeCount(userID))
			return nil
		})
	})
	return err
}
