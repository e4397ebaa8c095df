package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// windowScript increments the counter and starts the window on the first
// request. It replies {count, pttl}.
var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// DistributedRateLimiter is a fixed window limiter shared by all replicas
// through Redis
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "subscriptions:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request against the current window for key
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)

	res, err := windowScript.Run(ctx, rl.redis, []string{redisKey}, rl.config.WindowDuration.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	count64, _ := res[0].(int64)
	pttl, _ := res[1].(int64)

	limit := rl.config.RequestsPerWindow + rl.config.BurstSize
	count := int(count64)
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	reset := time.Duration(pttl) * time.Millisecond
	if reset <= 0 {
		reset = rl.config.WindowDuration
	}

	return Decision{
		Allowed:   count <= limit,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// Reset clears the window for key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// Window returns the configured window length
func (rl *DistributedRateLimiter) Window() time.Duration {
	return rl.config.WindowDuration
}
