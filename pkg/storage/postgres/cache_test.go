package postgres

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often catalogue reads reach the backing store
type countingStore struct {
	storage.Store
	planListCalls int
	currencyCalls int
	lists         map[string]*billing.PlanList
}

func (s *countingStore) GetPlanListBySlug(ctx context.Context, slug string) (*billing.PlanList, error) {
	s.planListCalls++
	l, ok := s.lists[slug]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return l, nil
}

func (s *countingStore) GetCurrency(ctx context.Context, id int64) (*currency.PaymentCurrency, error) {
	s.currencyCalls++
	c := currency.New("en_US", "$", "USD ")
	c.ID = id
	return &c, nil
}

func (s *countingStore) UpdatePlanList(ctx context.Context, l *billing.PlanList) error {
	s.lists[*l.Slug] = l
	return nil
}

func (s *countingStore) UpdateCurrency(ctx context.Context, c *currency.PaymentCurrency) error {
	return nil
}

func newCountingStore() *countingStore {
	slug := "pro"
	return &countingStore{lists: map[string]*billing.PlanList{
		"pro": {ID: 1, Title: "Pro plans", Slug: &slug, Active: true, Details: []billing.PlanListDetail{
			{ID: 3, PlanCostID: uuid.New(), PlanListID: 1, SubscribeButtonText: "Go", Order: 1, Active: true},
		}},
	}}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

func TestCachedStore_L1Only(t *testing.T) {
	backing := newCountingStore()
	cs := NewCachedStore(backing, nil, storage.DefaultConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l, err := cs.GetPlanListBySlug(ctx, "pro")
		require.NoError(t, err)
		assert.Equal(t, "Pro plans", l.Title)
	}
	assert.Equal(t, 1, backing.planListCalls)

	_, err := cs.GetPlanListBySlug(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = cs.GetPlanListBySlug(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 3, backing.planListCalls)
}

func TestCachedStore_RedisSharedAcrossInstances(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()

	backing := newCountingStore()
	first := NewCachedStore(backing, client, storage.DefaultConfig(), testLogger())
	_, err := first.GetPlanListBySlug(ctx, "pro")
	require.NoError(t, err)
	assert.True(t, mr.Exists("plan_list:pro"))

	// a fresh process starts with an empty L1 but finds the entry in Redis
	second := NewCachedStore(backing, client, storage.DefaultConfig(), testLogger())
	l, err := second.GetPlanListBySlug(ctx, "pro")
	require.NoError(t, err)
	require.Len(t, l.Details, 1)
	assert.Equal(t, "Go", l.Details[0].SubscribeButtonText)
	assert.Equal(t, 1, backing.planListCalls)
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()
	backing := newCountingStore()
	cs := NewCachedStore(backing, client, storage.DefaultConfig(), testLogger())

	_, err := cs.GetPlanListBySlug(ctx, "pro")
	require.NoError(t, err)
	_, err = cs.GetCurrency(ctx, 7)
	require.NoError(t, err)

	l := *backing.lists["pro"]
	l.Title = "Professional"
	require.NoError(t, cs.UpdatePlanList(ctx, &l))
	assert.False(t, mr.Exists("plan_list:pro"))
	assert.True(t, mr.Exists("currency:7"))

	got, err := cs.GetPlanListBySlug(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, "Professional", got.Title)
	assert.Equal(t, 2, backing.planListCalls)

	cur := currency.New("en_US", "US$", "USD ")
	cur.ID = 7
	require.NoError(t, cs.UpdateCurrency(ctx, &cur))
	assert.False(t, mr.Exists("currency:7"))
	assert.False(t, mr.Exists("plan_list:pro"))

	_, err = cs.GetCurrency(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.currencyCalls)
}

func TestCachedStore_RecordsLookups(t *testing.T) {
	client, _ := setupRedisClientTest(t)
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cs := NewCachedStore(newCountingStore(), client, storage.DefaultConfig(), testLogger()).WithRecorder(metrics)
	for i := 0; i < 2; i++ {
		_, err := cs.GetPlanListBySlug(ctx, "pro")
		require.NoError(t, err)
	}

	lookups := func(layer, result string) float64 {
		return testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues(layer, "plan_list", result))
	}
	assert.Equal(t, float64(1), lookups("l1", "miss"))
	assert.Equal(t, float64(1), lookups("l1", "hit"))
	assert.Equal(t, float64(1), lookups("redis", "miss"))
	assert.Equal(t, float64(0), lookups("redis", "hit"))
}

func TestCachedStore_ReturnsCopies(t *testing.T) {
	backing := newCountingStore()
	cs := NewCachedStore(backing, nil, storage.DefaultConfig(), testLogger())
	ctx := context.Background()

	first, err := cs.GetCurrency(ctx, 1)
	require.NoError(t, err)
	first.CurrencySymbol = "EVIL"

	again, err := cs.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "$", again.CurrencySymbol)
	assert.Equal(t, 1, backing.currencyCalls)

	again.CurrencySymbol = "X"
	third, err := cs.GetCurrency(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "$", third.CurrencySymbol)
}
