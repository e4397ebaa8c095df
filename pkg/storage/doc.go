// Package storage defines the persistence contract for subscription billing.
//
// # Overview
//
// Store is composed of one focused interface per record type so callers can
// depend on only what they use:
//
//   - RetryStore: payment retry schedule (FirstRetry / NextRetry)
//   - GroupStore: authorization groups and user membership
//   - TagStore, PlanStore, PlanCostStore: the plan catalogue (BasicPlanCost)
//   - CurrencyStore: currency formatting rules
//   - SubscriptionStore: user subscriptions (AttachSubscription, ToCharge, FailedRenewals)
//   - TransactionStore: billing transactions
//   - PlanListStore: display lists and their details
//
// The PostgreSQL implementation lives in storage/postgres.
//
// # Errors
//
// Implementations translate backend failures into the sentinel errors below so
// HTTP handlers can map them to status codes with errors.Is:
//
//	plan, err := store.GetPlan(ctx, id)
//	if errors.Is(err, storage.ErrNotFound) {
//		// 404
//	}
//
// # Listing
//
// List methods accept ListOptions. Search matches case-insensitively against
// the record's searchable columns, Filters restricts exact column values and
// Ordering names columns with an optional "-" prefix for descending order.
// Unknown filter or ordering columns are rejected with ErrInvalidQuery.
package storage
