//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a disposable PostgreSQL and applies every migration
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("subscriptions_test"),
		tcpostgres.WithUsername("subscriptions"),
		tcpostgres.WithPassword("subscriptions_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	applied, err := RunMigrations(ctx, db, testLogger())
	require.NoError(t, err)
	assert.Equal(t, len(Migrations()), applied)

	again, err := RunMigrations(ctx, db, testLogger())
	require.NoError(t, err)
	assert.Zero(t, again)

	return db
}

func TestIntegration_Catalogue(t *testing.T) {
	db := setupPostgres(t)
	s := NewStoreFromDB(db)
	ctx := context.Background()

	_, err := s.SyncCurrencies(ctx, currency.DefaultDefinitions())
	require.NoError(t, err)
	usd, _, err := s.ListCurrencies(ctx, storage.ListOptions{Filters: map[string]string{"locale": "en_US"}})
	require.NoError(t, err)
	require.Len(t, usd, 1)

	tag := billing.PlanTag{Tag: "featured"}
	require.NoError(t, s.CreateTag(ctx, &tag))
	dup := billing.PlanTag{Tag: "featured"}
	assert.ErrorIs(t, s.CreateTag(ctx, &dup), storage.ErrConflict)

	slug := "gold"
	plan := billing.SubscriptionPlan{PlanName: "Gold", Slug: &slug, Tags: []billing.PlanTag{tag}}
	require.NoError(t, s.CreatePlan(ctx, &plan))

	cost := billing.NewPlanCost(plan.ID)
	cost.CurrencyID = &usd[0].ID
	cost.Cost = decimal.NewNullDecimal(decimal.RequireFromString("1234.5"))
	require.NoError(t, s.CreatePlanCost(ctx, &cost))

	got, err := s.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "featured", got.DisplayTags())
	require.Len(t, got.Costs, 1)
	assert.Equal(t, "$1,234.50", got.Costs[0].FormattedCost())

	planList := billing.PlanList{Title: "Pricing", Slug: &slug, Active: true}
	require.NoError(t, s.CreatePlanList(ctx, &planList))
	hidden := billing.NewPlanListDetail(planList.ID, cost.ID)
	hidden.Active = false
	hidden.Order = 0
	require.NoError(t, s.CreatePlanListDetail(ctx, &hidden))
	shown := billing.NewPlanListDetail(planList.ID, cost.ID)
	require.NoError(t, s.CreatePlanListDetail(ctx, &shown))

	public, err := s.GetPlanListBySlug(ctx, "gold")
	require.NoError(t, err)
	require.Len(t, public.Details, 1)
	assert.Equal(t, shown.ID, public.Details[0].ID)
	require.NotNil(t, public.Details[0].PlanCost)
	assert.Equal(t, "Gold", public.Details[0].PlanCost.Plan.PlanName)
	assert.Equal(t, "Pricing", public.Details[0].PlanListTitle)

	detail, err := s.GetPlanListDetail(ctx, shown.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(detail.String(), "Plan List Pricing - Gold"), detail.String())

	bad := billing.NewPlanListDetail(planList.ID, cost.ID)
	bad.PlanListID = 9999
	assert.ErrorIs(t, s.CreatePlanListDetail(ctx, &bad), storage.ErrInvalidReference)

	require.NoError(t, s.DeletePlan(ctx, plan.ID))
	_, err = s.GetPlanCost(ctx, cost.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_Renewals(t *testing.T) {
	db := setupPostgres(t)
	s := NewStoreFromDB(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	plan := billing.SubscriptionPlan{PlanName: "Basic", GracePeriod: 1}
	require.NoError(t, s.CreatePlan(ctx, &plan))
	cost := billing.NewPlanCost(plan.ID)
	cost.Cost = decimal.NewNullDecimal(decimal.RequireFromString("3"))
	require.NoError(t, s.CreatePlanCost(ctx, &cost))

	sub, err := s.AttachSubscription(ctx, cost.ID, 11, now.AddDate(0, 0, -1))
	require.NoError(t, err)

	unbilled, err := s.Unbilled(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, unbilled[0])

	next := now.AddDate(0, 0, -1)
	sub.DateBillingLast = &next
	sub.DateBillingNext = &next
	require.NoError(t, s.RecordRenewal(ctx, sub, &billing.SubscriptionTransaction{
		UserID: sub.UserID, PlanCostID: &cost.ID, DateTransaction: now, Amount: cost.Cost,
	}))

	due, err := s.ToCharge(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	txns, total, err := s.ListTransactions(ctx, storage.ListOptions{Filters: map[string]string{"user": "11"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, txns[0].PlanCost)
	assert.Equal(t, "11 for Basic @  3", txns[0].String())

	subs, _, err := s.ListSubscriptions(ctx, storage.ListOptions{Search: "bas"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "11 for Basic", subs[0].String())

	for _, filter := range []map[string]string{{"active": "maybe"}, {"user": "abc"}} {
		_, _, err = s.ListSubscriptions(ctx, storage.ListOptions{Filters: filter})
		assert.ErrorIs(t, err, storage.ErrInvalid, filter)
	}

	retry := billing.PaymentRetry{Iteration: 1, RetryOffset: 2}
	require.NoError(t, s.CreateRetry(ctx, &retry))
	attempted := now.AddDate(0, 0, -1)
	sub.RenewalStatus = billing.RenewalRetrying
	sub.RetryID = &retry.ID
	sub.DateBillingAttempt = &attempted
	require.NoError(t, s.UpdateSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DateBillingAttempt)
	assert.True(t, attempted.Equal(*got.DateBillingAttempt))

	waiting, err := s.FailedRenewals(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, waiting)
	ready, err := s.FailedRenewals(ctx, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sub.ID}, ready)
}
