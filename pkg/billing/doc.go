// Package billing defines the subscription billing records and the rules
// derived from them.
//
// # Records
//
//   - SubscriptionPlan: a named plan, optionally bound to an auth group and tagged
//   - PlanCost: one price/frequency tier of a plan
//   - UserSubscription: a user's enrolment in a plan cost with its billing window
//   - SubscriptionTransaction: a payment, refund or cancellation entry
//   - PaymentRetry: a retry policy step (iteration N waits retry_offset days)
//   - PlanList / PlanListDetail: curated plan listings for display
//
// # Billing dates
//
// The next billing date is the current date plus the cost's recurrence period
// in units of its recurrence unit. Months and years use the mean Gregorian
// lengths (30.4368 and 365.2425 days) so that no calendar arithmetic is needed:
//
//	next, ok := cost.NextBillingDatetime(time.Now())
//	if !ok {
//		// one-time cost, never billed again
//	}
//
// # Retries
//
// A subscription in the retrying state is eligible for another charge once the
// whole days elapsed since its last billing reach the offset of its attached
// PaymentRetry. Subscriptions without a retry policy are never eligible.
package billing
