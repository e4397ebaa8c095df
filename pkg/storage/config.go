package storage

import "time"

// Cache kinds, used as CacheTTL keys and metric labels
const (
	CacheKindPlanList = "plan_list"
	CacheKindPlanCost = "plan_cost"
	CacheKindCurrency = "currency"
)

// Config holds database, redis and cache settings shared by both binaries
type Config struct {
	PostgresURL string
	// PostgresReplicaURLs is comma separated; empty means reads go to the primary
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// RedisURL enables the shared cache, the distributed rate limiter and the
	// renewal lock. The remaining Redis fields override the URL.
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	CacheEnabled bool
	// CacheTTL is the Redis TTL per cache kind
	CacheTTL map[string]time.Duration
	// L1Cache* size the in-process LRU in front of Redis
	L1CacheSize int
	L1CacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			CacheKindPlanList: 5 * time.Minute,
			CacheKindPlanCost: 15 * time.Minute,
			CacheKindCurrency: time.Hour,
		},
		L1CacheSize: 1024,
		L1CacheTTL:  30 * time.Second,
	}
}
