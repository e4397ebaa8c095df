package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRetry_PrettyOffset(t *testing.T) {
	assert.Equal(t, "immediately", PaymentRetry{RetryOffset: 0}.PrettyOffset())
	assert.Equal(t, "the next day", PaymentRetry{RetryOffset: 1}.PrettyOffset())
	assert.Equal(t, "in 3 days", PaymentRetry{RetryOffset: 3}.String())
}

func TestSubscriptionPlan_DisplayTags(t *testing.T) {
	tags := []PlanTag{{Tag: "a"}, {Tag: "b"}, {Tag: "c"}, {Tag: "d"}}

	assert.Equal(t, "", SubscriptionPlan{}.DisplayTags())
	assert.Equal(t, "a, b", SubscriptionPlan{Tags: tags[:2]}.DisplayTags())
	assert.Equal(t, "a, b, c", SubscriptionPlan{Tags: tags[:3]}.DisplayTags())
	assert.Equal(t, "a, b, c, ...", SubscriptionPlan{Tags: tags}.DisplayTags())
}

func TestSubscriptionPlan_Validate(t *testing.T) {
	assert.Error(t, SubscriptionPlan{}.Validate())
	assert.NoError(t, SubscriptionPlan{PlanName: "Pro"}.Validate())

	long := make([]rune, 129)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, SubscriptionPlan{PlanName: string(long)}.Validate())
}

func TestPlanCost_Defaults(t *testing.T) {
	planID := uuid.New()
	cost := NewPlanCost(planID)

	assert.Equal(t, planID, cost.PlanID)
	assert.Equal(t, uint16(1), cost.RecurrencePeriod)
	assert.Equal(t, RecurrenceMonth, cost.RecurrenceUnit)
	assert.True(t, cost.Active)
	assert.False(t, cost.Cost.Valid)
	assert.NoError(t, cost.Validate())
}

func TestPlanCost_Validate(t *testing.T) {
	cost := NewPlanCost(uuid.New())
	cost.RecurrencePeriod = 0
	assert.ErrorIs(t, cost.Validate(), ErrInvalidRecurrencePeriod)

	cost = NewPlanCost(uuid.New())
	cost.RecurrenceUnit = "x"
	assert.ErrorIs(t, cost.Validate(), ErrInvalidRecurrenceUnit)
}

func TestPlanCost_DisplayText(t *testing.T) {
	tests := []struct {
		unit      RecurrenceUnit
		period    uint16
		unitText  string
		frequency string
	}{
		{RecurrenceOnce, 1, "one-time", "one-time"},
		{RecurrenceOnce, 4, "one-time", "one-time"},
		{RecurrenceSecond, 1, "per second", "per second"},
		{RecurrenceMinute, 30, "per minute", "every 30 minutes"},
		{RecurrenceHour, 2, "per hour", "every 2 hours"},
		{RecurrenceDay, 1, "per day", "per day"},
		{RecurrenceWeek, 2, "per week", "every 2 weeks"},
		{RecurrenceMonth, 1, "per month", "per month"},
		{RecurrenceMonth, 3, "per month", "every 3 months"},
		{RecurrenceYear, 2, "per year", "every 2 years"},
	}

	for _, tt := range tests {
		cost := PlanCost{RecurrenceUnit: tt.unit, RecurrencePeriod: tt.period}
		assert.Equal(t, tt.unitText, cost.DisplayRecurrentUnitText())
		assert.Equal(t, tt.frequency, cost.DisplayBillingFrequencyText())
	}
}

func TestPlanCost_CostAsFloat(t *testing.T) {
	assert.Equal(t, 0.0, PlanCost{}.CostAsFloat())

	cost := PlanCost{Cost: decimal.NewNullDecimal(decimal.RequireFromString("12.3400"))}
	assert.Equal(t, 12.34, cost.CostAsFloat())
}

func TestPlanCost_String(t *testing.T) {
	usd, ok := currency.DefaultDefinitions().Lookup("en_US")
	require.True(t, ok)

	cost := PlanCost{
		Plan:             &SubscriptionPlan{PlanName: "Pro"},
		Currency:         &usd,
		Cost:             decimal.NewNullDecimal(decimal.NewFromInt(10)),
		RecurrenceUnit:   RecurrenceMonth,
		RecurrencePeriod: 1,
	}
	assert.Equal(t, "Pro @ $ 10.0 per month", cost.String())

	cost.Cost = decimal.NewNullDecimal(decimal.RequireFromString("9.99"))
	cost.RecurrencePeriod = 6
	assert.Equal(t, "Pro @ $ 9.99 every 6 months", cost.String())
}

func TestPlanCost_FormattedCost(t *testing.T) {
	usd, _ := currency.DefaultDefinitions().Lookup("en_US")

	cost := PlanCost{Cost: decimal.NewNullDecimal(decimal.RequireFromString("1999.5"))}
	assert.Equal(t, "1999.50", cost.FormattedCost())

	cost.Currency = &usd
	assert.Equal(t, "$1,999.50", cost.FormattedCost())

	assert.Equal(t, "$0.00", PlanCost{Currency: &usd}.FormattedCost())
}

func TestUserSubscription_TransactionAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	_, ok := UserSubscription{}.TransactionAgo(now)
	assert.False(t, ok)

	tests := []struct {
		last time.Time
		want int
	}{
		{now, 0},
		{now.Add(-23 * time.Hour), 0},
		{now.Add(-24 * time.Hour), 1},
		{now.Add(-71 * time.Hour), 2},
		{now.Add(time.Hour), -1},
		{now.Add(24 * time.Hour), -1},
	}
	for _, tt := range tests {
		last := tt.last
		days, ok := UserSubscription{DateBillingLast: &last}.TransactionAgo(now)
		require.True(t, ok)
		assert.Equal(t, tt.want, days, "last=%s", last)
	}
}

func TestUserSubscription_ForRetry(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	threeDaysAgo := now.Add(-72 * time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)
	monthAgo := now.AddDate(0, -1, 0)

	tests := []struct {
		name string
		sub  UserSubscription
		want bool
	}{
		{"no retry attached", UserSubscription{DateBillingLast: &threeDaysAgo}, false},
		{"never billed", UserSubscription{Retry: &PaymentRetry{RetryOffset: 0}}, false},
		{"offset reached", UserSubscription{DateBillingLast: &threeDaysAgo, Retry: &PaymentRetry{RetryOffset: 3}}, true},
		{"offset exceeded", UserSubscription{DateBillingLast: &threeDaysAgo, Retry: &PaymentRetry{RetryOffset: 1}}, true},
		{"offset not reached", UserSubscription{DateBillingLast: &twoDaysAgo, Retry: &PaymentRetry{RetryOffset: 3}}, false},
		{"immediate retry", UserSubscription{DateBillingLast: &now, Retry: &PaymentRetry{RetryOffset: 0}}, true},
		{"offset counts from the declined attempt", UserSubscription{DateBillingLast: &monthAgo, DateBillingAttempt: &twoDaysAgo, Retry: &PaymentRetry{RetryOffset: 3}}, false},
		{"attempt offset reached", UserSubscription{DateBillingLast: &monthAgo, DateBillingAttempt: &threeDaysAgo, Retry: &PaymentRetry{RetryOffset: 3}}, true},
		{"attempt without billing", UserSubscription{DateBillingAttempt: &threeDaysAgo, Retry: &PaymentRetry{RetryOffset: 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.ForRetry(now))
		})
	}
}

func TestNewUserSubscription(t *testing.T) {
	start := time.Now()
	costID := uuid.New()
	sub := NewUserSubscription(7, costID, start)

	assert.NotEqual(t, uuid.Nil, sub.ID)
	assert.Equal(t, int64(7), *sub.UserID)
	assert.Equal(t, costID, *sub.PlanCostID)
	assert.Equal(t, start, *sub.DateBillingStart)
	assert.True(t, sub.Active)
	assert.False(t, sub.Cancelled)
	assert.Equal(t, RenewalRunning, sub.RenewalStatus)
	assert.Nil(t, sub.DateBillingNext)
}

func TestStringers(t *testing.T) {
	usd, _ := currency.DefaultDefinitions().Lookup("en_US")
	userID := int64(42)
	cost := &PlanCost{Plan: &SubscriptionPlan{PlanName: "Pro"}, Currency: &usd, RecurrenceUnit: RecurrenceOnce, RecurrencePeriod: 1}

	assert.Equal(t, "42 for Pro", UserSubscription{UserID: &userID, PlanCost: cost}.String())
	assert.Equal(t, "None for Pro", UserSubscription{PlanCost: cost}.String())

	txn := SubscriptionTransaction{
		UserID:   &userID,
		PlanCost: cost,
		Amount:   decimal.NewNullDecimal(decimal.RequireFromString("5.5")),
	}
	assert.Equal(t, "42 for Pro @ $ 5.5", txn.String())

	assert.Equal(t, "Plan List Featured - Pro @ $ 0.0 one-time",
		PlanListDetail{PlanListID: 3, PlanListTitle: "Featured", PlanCost: cost}.String())
	assert.Equal(t, "Plan List 3 - Pro @ $ 0.0 one-time", PlanListDetail{PlanListID: 3, PlanCost: cost}.String())
	assert.Equal(t, "Featured", PlanList{Title: "Featured"}.String())
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Running", RenewalRunning.Label())
	assert.Equal(t, "Retrying subscription renewal", RenewalRetrying.Label())
	assert.Equal(t, "Failed", RenewalFailed.Label())
	assert.False(t, RenewalStatus("X").Valid())

	assert.Equal(t, "Payment", TransactionPayment.Label())
	assert.Equal(t, "Refund", TransactionRefund.Label())
	assert.Equal(t, "Cancellation", TransactionCancel.Label())
	assert.True(t, TransactionCancel.Valid())
	assert.False(t, TransactionType("X").Valid())
}

func TestNewPlanListDetail(t *testing.T) {
	d := NewPlanListDetail(1, uuid.New())
	assert.Equal(t, "Subscribe", d.SubscribeButtonText)
	assert.Equal(t, uint32(1), d.Order)
	assert.True(t, d.Active)
}
