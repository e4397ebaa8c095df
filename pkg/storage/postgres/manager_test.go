package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sqliteSchema = `
CREATE TABLE auth_groups (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);
CREATE TABLE auth_user_groups (user_id INTEGER NOT NULL, group_id INTEGER NOT NULL, PRIMARY KEY (user_id, group_id));
CREATE TABLE payment_retries (id INTEGER PRIMARY KEY AUTOINCREMENT, iteration INTEGER NOT NULL, retry_offset INTEGER NOT NULL);
CREATE TABLE plan_tags (id INTEGER PRIMARY KEY AUTOINCREMENT, tag TEXT NOT NULL UNIQUE);
CREATE TABLE subscription_plans (
	id TEXT PRIMARY KEY, plan_name TEXT NOT NULL, slug TEXT UNIQUE, plan_description TEXT NOT NULL DEFAULT '',
	group_id INTEGER REFERENCES auth_groups(id), grace_period INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE subscription_plan_tags (plan_id TEXT NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (plan_id, tag_id));
CREATE TABLE payment_currencies (
	id INTEGER PRIMARY KEY AUTOINCREMENT, locale TEXT NOT NULL, currency_symbol TEXT NOT NULL, int_curr_symbol TEXT NOT NULL,
	p_cs_precedes BOOLEAN NOT NULL, n_cs_precedes BOOLEAN NOT NULL, p_sep_by_space BOOLEAN NOT NULL, n_sep_by_space BOOLEAN NOT NULL,
	mon_decimal_point TEXT NOT NULL, mon_thousands_sep TEXT NOT NULL, mon_grouping INTEGER NOT NULL, frac_digits INTEGER NOT NULL,
	int_frac_digits INTEGER NOT NULL, positive_sign TEXT, negative_sign TEXT NOT NULL, p_sign_posn TEXT NOT NULL, n_sign_posn TEXT NOT NULL
);
CREATE TABLE plan_costs (
	id TEXT PRIMARY KEY, plan_id TEXT NOT NULL REFERENCES subscription_plans(id), slug TEXT UNIQUE,
	recurrence_period INTEGER NOT NULL, recurrence_unit TEXT NOT NULL, currency_id INTEGER REFERENCES payment_currencies(id),
	cost NUMERIC, active BOOLEAN NOT NULL
);
CREATE TABLE user_subscriptions (
	id TEXT PRIMARY KEY, user_id INTEGER, plan_cost_id TEXT REFERENCES plan_costs(id),
	date_billing_start TIMESTAMP, date_billing_end TIMESTAMP, date_billing_last TIMESTAMP, date_billing_next TIMESTAMP,
	active BOOLEAN NOT NULL, cancelled BOOLEAN NOT NULL, renewal_status TEXT NOT NULL, retry_id INTEGER REFERENCES payment_retries(id),
	date_billing_attempt TIMESTAMP
);
CREATE TABLE subscription_transactions (
	id TEXT PRIMARY KEY, user_id INTEGER, plan_cost_id TEXT, date_transaction TIMESTAMP NOT NULL,
	amount NUMERIC, transaction_type TEXT NOT NULL
);
`

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)
	return NewStoreFromDB(db)
}

type fixture struct {
	group    *billing.Group
	plan     billing.SubscriptionPlan
	monthly  billing.PlanCost
	free     billing.PlanCost
	currency currency.PaymentCurrency
}

func seedCatalogue(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()

	group, err := s.GetOrCreateGroup(ctx, billing.DefaultGroupName)
	require.NoError(t, err)

	cur := currency.New("en_US", "$", "USD ")
	require.NoError(t, s.CreateCurrency(ctx, &cur))

	plan := billing.SubscriptionPlan{PlanName: "Gold", GroupID: &group.ID, GracePeriod: 2}
	require.NoError(t, s.CreatePlan(ctx, &plan))

	monthly := billing.NewPlanCost(plan.ID)
	monthly.RecurrenceUnit = billing.RecurrenceMonth
	monthly.CurrencyID = &cur.ID
	monthly.Cost = decimal.NewNullDecimal(decimal.RequireFromString("9.99"))
	require.NoError(t, s.CreatePlanCost(ctx, &monthly))

	free := billing.NewPlanCost(plan.ID)
	free.RecurrenceUnit = billing.RecurrenceOnce
	free.CurrencyID = &cur.ID
	free.Cost = decimal.NewNullDecimal(decimal.Zero)
	require.NoError(t, s.CreatePlanCost(ctx, &free))

	return fixture{group: group, plan: plan, monthly: monthly, free: free, currency: cur}
}

func TestRetrySchedule(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.FirstRetry(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for i, offset := range []uint16{1, 3, 7} {
		r := billing.PaymentRetry{Iteration: uint16(i + 1), RetryOffset: offset}
		require.NoError(t, s.CreateRetry(ctx, &r))
	}

	first, err := s.FirstRetry(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), first.Iteration)

	next, err := s.NextRetry(ctx, first.Iteration)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, uint16(3), next.RetryOffset)

	none, err := s.NextRetry(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGetOrCreateGroup(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateGroup(ctx, "Talent")
	require.NoError(t, err)
	b, err := s.GetOrCreateGroup(ctx, "Talent")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	require.NoError(t, s.AddUserToGroup(ctx, 7, a.ID))
	require.NoError(t, s.AddUserToGroup(ctx, 7, a.ID))
	groups, err := s.UserGroups(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	require.NoError(t, s.RemoveUserFromGroup(ctx, 7, a.ID))
	groups, err = s.UserGroups(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestBasicPlanCost(t *testing.T) {
	ctx := context.Background()

	t.Run("default group creates it and finds nothing", func(t *testing.T) {
		s := newSQLiteStore(t)
		cost, err := s.BasicPlanCost(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, cost)

		groups, err := s.ListGroups(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, billing.DefaultGroupName, groups[0].Name)
	})

	t.Run("returns the free cost with relations", func(t *testing.T) {
		s := newSQLiteStore(t)
		f := seedCatalogue(t, s)

		cost, err := s.BasicPlanCost(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, cost)
		assert.Equal(t, f.free.ID, cost.ID)
		require.NotNil(t, cost.Plan)
		assert.Equal(t, "Gold", cost.Plan.PlanName)
		require.NotNil(t, cost.Currency)
		assert.Equal(t, "USD ", cost.Currency.IntCurrSymbol)
	})

	t.Run("other group has no free cost", func(t *testing.T) {
		s := newSQLiteStore(t)
		seedCatalogue(t, s)
		other, err := s.GetOrCreateGroup(ctx, "Staff")
		require.NoError(t, err)

		cost, err := s.BasicPlanCost(ctx, &other.ID)
		require.NoError(t, err)
		assert.Nil(t, cost)
	})
}

func TestAttachSubscription(t *testing.T) {
	s := newSQLiteStore(t)
	f := seedCatalogue(t, s)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	sub, err := s.AttachSubscription(ctx, f.monthly.ID, 42, now)
	require.NoError(t, err)

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), *got.UserID)
	assert.True(t, got.Active)
	assert.False(t, got.Cancelled)
	assert.Equal(t, billing.RenewalRunning, got.RenewalStatus)
	assert.True(t, now.Equal(*got.DateBillingStart))
	assert.Nil(t, got.DateBillingLast)
	require.NotNil(t, got.PlanCost)
	assert.True(t, got.PlanCost.Cost.Decimal.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, "42 for Gold", got.String())
}

func TestRenewalQueries(t *testing.T) {
	s := newSQLiteStore(t)
	f := seedCatalogue(t, s)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		v := now.AddDate(0, 0, days)
		return &v
	}

	retry := billing.PaymentRetry{Iteration: 1, RetryOffset: 2}
	require.NoError(t, s.CreateRetry(ctx, &retry))

	create := func(mut func(*billing.UserSubscription)) uuid.UUID {
		sub := billing.NewUserSubscription(1, f.monthly.ID, now.AddDate(0, -1, 0))
		mut(&sub)
		require.NoError(t, s.CreateSubscription(ctx, &sub))
		return sub.ID
	}

	due := create(func(sub *billing.UserSubscription) {
		sub.DateBillingLast = at(-30)
		sub.DateBillingNext = at(-1)
	})
	notDue := create(func(sub *billing.UserSubscription) {
		sub.DateBillingLast = at(-5)
		sub.DateBillingNext = at(25)
	})
	create(func(sub *billing.UserSubscription) {
		sub.DateBillingNext = at(-1)
		sub.Cancelled = true
	})
	unbilled := create(func(sub *billing.UserSubscription) {})
	retryReady := create(func(sub *billing.UserSubscription) {
		sub.RenewalStatus = billing.RenewalRetrying
		sub.RetryID = &retry.ID
		sub.DateBillingLast = at(-3)
	})
	retryWaiting := create(func(sub *billing.UserSubscription) {
		sub.RenewalStatus = billing.RenewalRetrying
		sub.RetryID = &retry.ID
		sub.DateBillingLast = at(-1)
	})
	declinedRecently := create(func(sub *billing.UserSubscription) {
		sub.RenewalStatus = billing.RenewalRetrying
		sub.RetryID = &retry.ID
		sub.DateBillingLast = at(-30)
		sub.DateBillingAttempt = at(-1)
	})
	expired := create(func(sub *billing.UserSubscription) {
		sub.DateBillingLast = at(-40)
		sub.DateBillingEnd = at(-3)
	})
	inGrace := create(func(sub *billing.UserSubscription) {
		sub.DateBillingLast = at(-40)
		sub.DateBillingEnd = at(-1)
	})

	toCharge, err := s.ToCharge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due}, toCharge)
	assert.NotContains(t, toCharge, notDue)

	never, err := s.Unbilled(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{unbilled}, never)

	failed, err := s.FailedRenewals(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{retryReady}, failed)
	assert.NotContains(t, failed, retryWaiting)
	assert.NotContains(t, failed, declinedRecently)

	ended, err := s.Expired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{expired}, ended)
	assert.NotContains(t, ended, inGrace)
}

func TestRecordRenewal(t *testing.T) {
	s := newSQLiteStore(t)
	f := seedCatalogue(t, s)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	sub, err := s.AttachSubscription(ctx, f.monthly.ID, 9, now)
	require.NoError(t, err)

	next, ok := f.monthly.NextBillingDatetime(now)
	require.True(t, ok)
	sub.DateBillingLast = &now
	sub.DateBillingNext = &next
	txn := &billing.SubscriptionTransaction{
		UserID:          sub.UserID,
		PlanCostID:      &f.monthly.ID,
		DateTransaction: now,
		Amount:          f.monthly.Cost,
	}
	require.NoError(t, s.RecordRenewal(ctx, sub, txn))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, next.Equal(*got.DateBillingNext))

	saved, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TransactionPayment, saved.TransactionType)
	assert.True(t, saved.Amount.Decimal.Equal(decimal.RequireFromString("9.99")))

	missing := billing.NewUserSubscription(9, f.monthly.ID, now)
	err = s.RecordRenewal(ctx, &missing, &billing.SubscriptionTransaction{DateTransaction: now})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// the failed renewal left no transaction behind
	var count int
	require.NoError(t, s.write().QueryRow("SELECT COUNT(*) FROM subscription_transactions").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSyncCurrencies(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	defs := currency.DefaultDefinitions()
	n, err := s.SyncCurrencies(ctx, defs)
	require.NoError(t, err)
	assert.Equal(t, len(defs), n)

	_, total, err := s.ListCurrencies(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(defs)), total)

	us := defs["en_US"]
	us.CurrencySymbol = "US$"
	defs["en_US"] = us
	_, err = s.SyncCurrencies(ctx, defs)
	require.NoError(t, err)

	list, total, err := s.ListCurrencies(ctx, storage.ListOptions{Filters: map[string]string{"locale": "en_US"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "US$", list[0].CurrencySymbol)
}
