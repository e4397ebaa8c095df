package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// CachedStore serves catalogue reads from an in-process LRU, then Redis, then the store.
// Writes that could change a cached record invalidate both levels.
type CachedStore struct {
	storage.Store

	redis    *RedisClient
	l1       *expirable.LRU[string, any]
	logger   *observability.Logger
	recorder observability.Recorder
}

var _ storage.Store = (*CachedStore)(nil)

// NewCachedStore wraps store. redis may be nil to cache in process only.
func NewCachedStore(store storage.Store, redis *RedisClient, config storage.Config, logger *observability.Logger) *CachedStore {
	size := config.L1CacheSize
	if size <= 0 {
		size = 1024
	}
	return &CachedStore{
		Store:  store,
		redis:  redis,
		l1:     expirable.NewLRU[string, any](size, nil, config.L1CacheTTL),
		logger: logger,
	}
}

// WithRecorder reports cache hits and misses to rec
func (c *CachedStore) WithRecorder(rec observability.Recorder) *CachedStore {
	c.recorder = rec
	return c
}

func (c *CachedStore) record(ctx context.Context, layer, kind string, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(ctx, layer, kind, hit)
	}
}

// cached hands out copies so callers can modify a record without touching
// the shared L1 entry.
func cached[T any](ctx context.Context, c *CachedStore, kind, key string, load func() (*T, error)) (*T, error) {
	if v, ok := c.l1.Get(key); ok {
		if t, ok := v.(*T); ok {
			c.record(ctx, "l1", kind, true)
			return clone(t), nil
		}
	}
	c.record(ctx, "l1", kind, false)

	if c.redis != nil {
		var t T
		hit, err := c.redis.GetJSON(ctx, key, &t)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		} else if hit {
			c.record(ctx, "redis", kind, true)
			c.l1.Add(key, clone(&t))
			return &t, nil
		}
		c.record(ctx, "redis", kind, false)
	}

	t, err := load()
	if err != nil {
		return nil, err
	}
	c.l1.Add(key, clone(t))
	if c.redis != nil {
		if err := c.redis.SetJSON(ctx, kind, key, t); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
	}
	return t, nil
}

func clone[T any](t *T) *T {
	cp := *t
	return &cp
}

// invalidate drops keys and, for prefixes, every key starting with them
func (c *CachedStore) invalidate(ctx context.Context, keys []string, prefixes ...string) {
	for _, k := range keys {
		c.l1.Remove(k)
	}
	for _, k := range c.l1.Keys() {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				c.l1.Remove(k)
			}
		}
	}

	if c.redis == nil {
		return
	}
	if err := c.redis.Invalidate(ctx, keys...); err != nil {
		c.logger.WithError(err).Warn("Cache invalidation failed")
	}
	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = p + "*"
	}
	if err := c.redis.InvalidatePatterns(ctx, patterns...); err != nil {
		c.logger.WithError(err).Warn("Cache invalidation failed")
	}
}

const (
	planListPrefix = "plan_list:"
	planCostPrefix = "plan_cost:"
)

// GetPlanListBySlug returns the active plan list for slug
func (c *CachedStore) GetPlanListBySlug(ctx context.Context, slug string) (*billing.PlanList, error) {
	return cached(ctx, c, storage.CacheKindPlanList, planListKey(slug), func() (*billing.PlanList, error) {
		return c.Store.GetPlanListBySlug(ctx, slug)
	})
}

// GetPlanCost returns a plan cost with its plan and currency
func (c *CachedStore) GetPlanCost(ctx context.Context, id uuid.UUID) (*billing.PlanCost, error) {
	return cached(ctx, c, storage.CacheKindPlanCost, planCostKey(id), func() (*billing.PlanCost, error) {
		return c.Store.GetPlanCost(ctx, id)
	})
}

// GetCurrency returns a currency by id
func (c *CachedStore) GetCurrency(ctx context.Context, id int64) (*currency.PaymentCurrency, error) {
	return cached(ctx, c, storage.CacheKindCurrency, currencyKey(id), func() (*currency.PaymentCurrency, error) {
		return c.Store.GetCurrency(ctx, id)
	})
}

func (c *CachedStore) UpdatePlan(ctx context.Context, plan *billing.SubscriptionPlan) error {
	if err := c.Store.UpdatePlan(ctx, plan); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planCostPrefix, planListPrefix)
	return nil
}

func (c *CachedStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	if err := c.Store.DeletePlan(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planCostPrefix, planListPrefix)
	return nil
}

func (c *CachedStore) CreatePlanCost(ctx context.Context, cost *billing.PlanCost) error {
	if err := c.Store.CreatePlanCost(ctx, cost); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}

func (c *CachedStore) UpdatePlanCost(ctx context.Context, cost *billing.PlanCost) error {
	if err := c.Store.UpdatePlanCost(ctx, cost); err != nil {
		return err
	}
	c.invalidate(ctx, []string{planCostKey(cost.ID)}, planListPrefix)
	return nil
}

func (c *CachedStore) DeletePlanCost(ctx context.Context, id uuid.UUID) error {
	if err := c.Store.DeletePlanCost(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, []string{planCostKey(id)}, planListPrefix)
	return nil
}

func (c *CachedStore) UpdateCurrency(ctx context.Context, cur *currency.PaymentCurrency) error {
	if err := c.Store.UpdateCurrency(ctx, cur); err != nil {
		return err
	}
	c.invalidate(ctx, []string{currencyKey(cur.ID)}, planCostPrefix, planListPrefix)
	return nil
}

func (c *CachedStore) DeleteCurrency(ctx context.Context, id int64) error {
	if err := c.Store.DeleteCurrency(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, []string{currencyKey(id)}, planCostPrefix, planListPrefix)
	return nil
}

func (c *CachedStore) SyncCurrencies(ctx context.Context, defs currency.Definitions) (int, error) {
	n, err := c.Store.SyncCurrencies(ctx, defs)
	if err != nil {
		return n, err
	}
	c.invalidate(ctx, nil, "currency:", planCostPrefix, planListPrefix)
	return n, nil
}

func (c *CachedStore) UpdatePlanList(ctx context.Context, l *billing.PlanList) error {
	if err := c.Store.UpdatePlanList(ctx, l); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}

func (c *CachedStore) DeletePlanList(ctx context.Context, id int64) error {
	if err := c.Store.DeletePlanList(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}

func (c *CachedStore) CreatePlanListDetail(ctx context.Context, d *billing.PlanListDetail) error {
	if err := c.Store.CreatePlanListDetail(ctx, d); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}

func (c *CachedStore) UpdatePlanListDetail(ctx context.Context, d *billing.PlanListDetail) error {
	if err := c.Store.UpdatePlanListDetail(ctx, d); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}

func (c *CachedStore) DeletePlanListDetail(ctx context.Context, id int64) error {
	if err := c.Store.DeletePlanListDetail(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, nil, planListPrefix)
	return nil
}
