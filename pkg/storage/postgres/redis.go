package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// ErrLockNotHeld is returned when releasing a lock that expired or that
// another holder now owns
var ErrLockNotHeld = errors.New("lock not held")

// unlockScript deletes KEYS[1] only while it still holds the caller's token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the shared L2 cache and the renewal run lock
type RedisClient struct {
	rdb  *redis.Client
	ttls map[string]time.Duration
}

// NewRedisClient connects to cfg.RedisURL. Explicit password, db, retry and
// pool settings override whatever the URL carries.
func NewRedisClient(cfg storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisClient{rdb: rdb, ttls: cfg.CacheTTL}, nil
}

func planListKey(slug string) string  { return "plan_list:" + slug }
func planCostKey(id uuid.UUID) string { return "plan_cost:" + id.String() }
func currencyKey(id int64) string     { return fmt.Sprintf("currency:%d", id) }

// GetJSON decodes key into dest and reports whether it was present. An entry
// that no longer decodes is deleted so the next read repopulates it.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.rdb.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key; kind picks the TTL (plan_list, plan_cost, currency)
func (c *RedisClient) SetJSON(ctx context.Context, kind, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, c.ttls[kind]).Err()
}

func (c *RedisClient) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// InvalidatePatterns deletes every key matching one of the glob patterns
func (c *RedisClient) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		var keys []string
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if err := c.Invalidate(ctx, keys...); err != nil {
			return fmt.Errorf("invalidate %s: %w", pattern, err)
		}
	}
	return nil
}

// AcquireLock takes key for ttl and returns the token ReleaseLock needs.
// An empty token means someone else holds the lock.
func (c *RedisClient) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (c *RedisClient) ReleaseLock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, c.rdb, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("release %s: %w", key, ErrLockNotHeld)
	}
	return nil
}

// Ping is the readiness check for the redis dependency
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Client exposes the connection for the distributed rate limiter
func (c *RedisClient) Client() *redis.Client {
	return c.rdb
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
