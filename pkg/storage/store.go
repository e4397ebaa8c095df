package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
)

// ListOptions narrows and pages list queries
type ListOptions struct {
	Search   string
	Filters  map[string]string
	Ordering []string
	Limit    int
	Offset   int
}

// RetryStore persists the payment retry schedule
type RetryStore interface {
	CreateRetry(ctx context.Context, retry *billing.PaymentRetry) error
	GetRetry(ctx context.Context, id int64) (*billing.PaymentRetry, error)
	ListRetries(ctx context.Context, opts ListOptions) ([]billing.PaymentRetry, int64, error)
	UpdateRetry(ctx context.Context, retry *billing.PaymentRetry) error
	DeleteRetry(ctx context.Context, id int64) error

	// FirstRetry returns iteration 1, or ErrNotFound when the schedule is empty
	FirstRetry(ctx context.Context) (*billing.PaymentRetry, error)
	// NextRetry returns iteration current+1, or nil when there is none
	NextRetry(ctx context.Context, current uint16) (*billing.PaymentRetry, error)
}

// GroupStore persists authorization groups and their members
type GroupStore interface {
	GetGroup(ctx context.Context, id int64) (*billing.Group, error)
	GetOrCreateGroup(ctx context.Context, name string) (*billing.Group, error)
	ListGroups(ctx context.Context) ([]billing.Group, error)
	AddUserToGroup(ctx context.Context, userID, groupID int64) error
	RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error
	UserGroups(ctx context.Context, userID int64) ([]billing.Group, error)
}

// TagStore persists plan tags
type TagStore interface {
	CreateTag(ctx context.Context, tag *billing.PlanTag) error
	GetTag(ctx context.Context, id int64) (*billing.PlanTag, error)
	ListTags(ctx context.Context, opts ListOptions) ([]billing.PlanTag, int64, error)
	UpdateTag(ctx context.Context, tag *billing.PlanTag) error
	DeleteTag(ctx context.Context, id int64) error
}

// PlanStore persists subscription plans with their tags
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *billing.SubscriptionPlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*billing.SubscriptionPlan, error)
	ListPlans(ctx context.Context, opts ListOptions) ([]billing.SubscriptionPlan, int64, error)
	UpdatePlan(ctx context.Context, plan *billing.SubscriptionPlan) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
}

// PlanCostStore persists plan costs
type PlanCostStore interface {
	CreatePlanCost(ctx context.Context, cost *billing.PlanCost) error
	GetPlanCost(ctx context.Context, id uuid.UUID) (*billing.PlanCost, error)
	ListPlanCosts(ctx context.Context, opts ListOptions) ([]billing.PlanCost, int64, error)
	UpdatePlanCost(ctx context.Context, cost *billing.PlanCost) error
	DeletePlanCost(ctx context.Context, id uuid.UUID) error

	// BasicPlanCost returns the zero-cost plan cost of a group's plans.
	// A nil group resolves to the default group, which is created if missing.
	// Returns nil when the group has no free plan cost.
	BasicPlanCost(ctx context.Context, groupID *int64) (*billing.PlanCost, error)
}

// CurrencyStore persists currency formatting rules
type CurrencyStore interface {
	CreateCurrency(ctx context.Context, c *currency.PaymentCurrency) error
	GetCurrency(ctx context.Context, id int64) (*currency.PaymentCurrency, error)
	ListCurrencies(ctx context.Context, opts ListOptions) ([]currency.PaymentCurrency, int64, error)
	UpdateCurrency(ctx context.Context, c *currency.PaymentCurrency) error
	DeleteCurrency(ctx context.Context, id int64) error

	// SyncCurrencies updates currencies by locale and inserts missing ones
	SyncCurrencies(ctx context.Context, defs currency.Definitions) (int, error)
}

// SubscriptionStore persists user subscriptions
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *billing.UserSubscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*billing.UserSubscription, error)
	ListSubscriptions(ctx context.Context, opts ListOptions) ([]billing.UserSubscription, int64, error)
	UpdateSubscription(ctx context.Context, sub *billing.UserSubscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error

	// AttachSubscription enrols a user in a plan cost, billing from now
	AttachSubscription(ctx context.Context, planCostID uuid.UUID, userID int64, now time.Time) (*billing.UserSubscription, error)
	// FailedRenewals returns retrying subscriptions whose retry offset has elapsed
	FailedRenewals(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// ToCharge returns active subscriptions whose next billing date has passed
	ToCharge(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// Unbilled returns active subscriptions that started but were never billed
	Unbilled(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// Expired returns active subscriptions past their end date and grace period
	Expired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// RecordRenewal saves a subscription and its transaction atomically
	RecordRenewal(ctx context.Context, sub *billing.UserSubscription, txn *billing.SubscriptionTransaction) error
}

// TransactionStore persists subscription transactions
type TransactionStore interface {
	CreateTransaction(ctx context.Context, txn *billing.SubscriptionTransaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*billing.SubscriptionTransaction, error)
	ListTransactions(ctx context.Context, opts ListOptions) ([]billing.SubscriptionTransaction, int64, error)
	UpdateTransaction(ctx context.Context, txn *billing.SubscriptionTransaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
}

// PlanListStore persists plan lists and their details
type PlanListStore interface {
	CreatePlanList(ctx context.Context, list *billing.PlanList) error
	GetPlanList(ctx context.Context, id int64) (*billing.PlanList, error)
	GetPlanListBySlug(ctx context.Context, slug string) (*billing.PlanList, error)
	ListPlanLists(ctx context.Context, opts ListOptions) ([]billing.PlanList, int64, error)
	UpdatePlanList(ctx context.Context, list *billing.PlanList) error
	DeletePlanList(ctx context.Context, id int64) error

	CreatePlanListDetail(ctx context.Context, detail *billing.PlanListDetail) error
	GetPlanListDetail(ctx context.Context, id int64) (*billing.PlanListDetail, error)
	ListPlanListDetails(ctx context.Context, planListID int64, activeOnly bool) ([]billing.PlanListDetail, error)
	UpdatePlanListDetail(ctx context.Context, detail *billing.PlanListDetail) error
	DeletePlanListDetail(ctx context.Context, id int64) error
}

// HealthChecker reports backend availability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the full persistence contract
type Store interface {
	RetryStore
	GroupStore
	TagStore
	PlanStore
	PlanCostStore
	CurrencyStore
	SubscriptionStore
	TransactionStore
	PlanListStore
	HealthChecker
}
