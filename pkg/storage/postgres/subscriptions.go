package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const subscriptionColumns = `s.id, s.user_id, s.plan_cost_id, s.date_billing_start, s.date_billing_end,
	s.date_billing_last, s.date_billing_next, s.active, s.cancelled, s.renewal_status, s.retry_id,
	s.date_billing_attempt`

var subscriptionList = listSpec{
	from: `user_subscriptions s
		LEFT JOIN plan_costs pc ON pc.id = s.plan_cost_id
		LEFT JOIN subscription_plans p ON p.id = pc.plan_id`,
	columns: subscriptionColumns,
	search:  []string{"p.plan_name"},
	filters: map[string]string{
		"user": "s.user_id", "subscription": "s.plan_cost_id", "active": "s.active",
		"cancelled": "s.cancelled", "renewal_status": "s.renewal_status",
	},
	orderings: map[string]string{
		"user": "s.user_id", "subscription": "p.plan_name",
		"date_billing_start": "s.date_billing_start", "date_billing_end": "s.date_billing_end",
		"date_billing_last": "s.date_billing_last", "date_billing_next": "s.date_billing_next",
		"active": "s.active", "cancelled": "s.cancelled",
	},
	defaultOrder: "s.date_billing_start DESC, s.id ASC",
}

func scanSubscription(row rowScanner) (billing.UserSubscription, error) {
	var sub billing.UserSubscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanCostID, &sub.DateBillingStart, &sub.DateBillingEnd,
		&sub.DateBillingLast, &sub.DateBillingNext, &sub.Active, &sub.Cancelled, &sub.RenewalStatus, &sub.RetryID,
		&sub.DateBillingAttempt)
	if err != nil {
		return sub, err
	}
	sub.DateBillingStart = utcPtr(sub.DateBillingStart)
	sub.DateBillingEnd = utcPtr(sub.DateBillingEnd)
	sub.DateBillingLast = utcPtr(sub.DateBillingLast)
	sub.DateBillingNext = utcPtr(sub.DateBillingNext)
	sub.DateBillingAttempt = utcPtr(sub.DateBillingAttempt)
	return sub, nil
}

// utcPtr normalises stored timestamps, which carry no zone, to UTC
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func subscriptionValues(sub *billing.UserSubscription) []any {
	return []any{
		sub.UserID, sub.PlanCostID, utcPtr(sub.DateBillingStart), utcPtr(sub.DateBillingEnd),
		utcPtr(sub.DateBillingLast), utcPtr(sub.DateBillingNext), sub.Active, sub.Cancelled,
		sub.RenewalStatus, sub.RetryID, utcPtr(sub.DateBillingAttempt),
	}
}

const updateSubscriptionSQL = `
	UPDATE user_subscriptions
	SET user_id = $1, plan_cost_id = $2, date_billing_start = $3, date_billing_end = $4,
		date_billing_last = $5, date_billing_next = $6, active = $7, cancelled = $8,
		renewal_status = $9, retry_id = $10, date_billing_attempt = $11
	WHERE id = $12`

// CreateSubscription inserts a user subscription
func (s *Store) CreateSubscription(ctx context.Context, sub *billing.UserSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.RenewalStatus == "" {
		sub.RenewalStatus = billing.RenewalRunning
	}
	_, err := s.write().ExecContext(ctx, `
		INSERT INTO user_subscriptions (id, user_id, plan_cost_id, date_billing_start, date_billing_end,
			date_billing_last, date_billing_next, active, cancelled, renewal_status, retry_id, date_billing_attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		append([]any{sub.ID}, subscriptionValues(sub)...)...,
	)
	return wrapError(err, "create user subscription")
}

// GetSubscription returns a subscription with its plan cost and retry step
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*billing.UserSubscription, error) {
	sub, err := scanSubscription(s.read().QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM user_subscriptions s WHERE s.id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get user subscription")
	}

	if sub.PlanCostID != nil {
		if sub.PlanCost, err = s.GetPlanCost(ctx, *sub.PlanCostID); err != nil {
			return nil, err
		}
	}
	if sub.RetryID != nil {
		if sub.Retry, err = s.GetRetry(ctx, *sub.RetryID); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

// ListSubscriptions lists subscriptions with their plan costs and retry steps
func (s *Store) ListSubscriptions(ctx context.Context, opts storage.ListOptions) ([]billing.UserSubscription, int64, error) {
	subs, total, err := list(ctx, s.read(), subscriptionList, opts, "user subscriptions", scanSubscription)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachSubscriptionRelations(ctx, subs); err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// UpdateSubscription saves a subscription
func (s *Store) UpdateSubscription(ctx context.Context, sub *billing.UserSubscription) error {
	res, err := s.write().ExecContext(ctx, updateSubscriptionSQL, append(subscriptionValues(sub), sub.ID)...)
	if err != nil {
		return wrapError(err, "update user subscription")
	}
	return expectAffected(res, "update user subscription")
}

// DeleteSubscription deletes a subscription
func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM user_subscriptions WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete user subscription")
	}
	return expectAffected(res, "delete user subscription")
}

// AttachSubscription creates an active subscription of the user to a plan cost
func (s *Store) AttachSubscription(ctx context.Context, planCostID uuid.UUID, userID int64, now time.Time) (*billing.UserSubscription, error) {
	sub := billing.NewUserSubscription(userID, planCostID, now.UTC())
	if err := s.CreateSubscription(ctx, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// FailedRenewals returns retrying subscriptions whose retry offset has elapsed
func (s *Store) FailedRenewals(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT s.id, s.date_billing_last, s.date_billing_attempt, r.id, r.iteration, r.retry_offset
		FROM user_subscriptions s
		LEFT JOIN payment_retries r ON r.id = s.retry_id
		WHERE s.active = TRUE AND s.cancelled = FALSE AND s.renewal_status = $1
		ORDER BY COALESCE(s.date_billing_attempt, s.date_billing_last)`, billing.RenewalRetrying)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed renewals: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var sub billing.UserSubscription
		var retryID sql.NullInt64
		var iteration, offset sql.NullInt32
		if err := rows.Scan(&sub.ID, &sub.DateBillingLast, &sub.DateBillingAttempt, &retryID, &iteration, &offset); err != nil {
			return nil, fmt.Errorf("failed to scan failed renewal: %w", err)
		}
		if retryID.Valid {
			sub.Retry = &billing.PaymentRetry{
				ID:          retryID.Int64,
				Iteration:   uint16(iteration.Int32),
				RetryOffset: uint16(offset.Int32),
			}
		}
		if sub.ForRetry(now) {
			ids = append(ids, sub.ID)
		}
	}
	return ids, rows.Err()
}

// ToCharge returns active subscriptions whose next billing date is at or before now
func (s *Store) ToCharge(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return s.queryIDs(ctx, "due subscriptions", `
		SELECT id FROM user_subscriptions
		WHERE active = TRUE AND cancelled = FALSE AND date_billing_next <= $1
		ORDER BY date_billing_next`, now.UTC())
}

// Unbilled returns active subscriptions that have started but were never charged
func (s *Store) Unbilled(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return s.queryIDs(ctx, "unbilled subscriptions", `
		SELECT id FROM user_subscriptions
		WHERE active = TRUE AND cancelled = FALSE AND date_billing_last IS NULL
			AND date_billing_start <= $1
		ORDER BY date_billing_start`, now.UTC())
}

// Expired returns active subscriptions whose end date plus the plan grace period has passed
func (s *Store) Expired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT s.id, s.date_billing_end, COALESCE(p.grace_period, 0)
		FROM user_subscriptions s
		LEFT JOIN plan_costs pc ON pc.id = s.plan_cost_id
		LEFT JOIN subscription_plans p ON p.id = pc.plan_id
		WHERE s.active = TRUE AND s.date_billing_end IS NOT NULL AND s.date_billing_end < $1
		ORDER BY s.date_billing_end`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		var end time.Time
		var grace int64
		if err := rows.Scan(&id, &end, &grace); err != nil {
			return nil, fmt.Errorf("failed to scan expired subscription: %w", err)
		}
		if end.UTC().AddDate(0, 0, int(grace)).Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// RecordRenewal saves the subscription and, when given, its transaction in one transaction
func (s *Store) RecordRenewal(ctx context.Context, sub *billing.UserSubscription, txn *billing.SubscriptionTransaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateSubscriptionSQL, append(subscriptionValues(sub), sub.ID)...)
		if err != nil {
			return wrapError(err, "update user subscription")
		}
		if err := expectAffected(res, "update user subscription"); err != nil {
			return err
		}
		if txn == nil {
			return nil
		}
		return insertTransaction(ctx, tx, txn)
	})
}

func (s *Store) queryIDs(ctx context.Context, what, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.read().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// attachSubscriptionRelations fills PlanCost and Retry for many subscriptions
func (s *Store) attachSubscriptionRelations(ctx context.Context, subs []billing.UserSubscription) error {
	if len(subs) == 0 {
		return nil
	}

	costIDs := []string{}
	retryIDs := []int64{}
	seenCost := make(map[uuid.UUID]bool)
	seenRetry := make(map[int64]bool)
	for _, sub := range subs {
		if sub.PlanCostID != nil && !seenCost[*sub.PlanCostID] {
			seenCost[*sub.PlanCostID] = true
			costIDs = append(costIDs, sub.PlanCostID.String())
		}
		if sub.RetryID != nil && !seenRetry[*sub.RetryID] {
			seenRetry[*sub.RetryID] = true
			retryIDs = append(retryIDs, *sub.RetryID)
		}
	}

	costs := make(map[uuid.UUID]*billing.PlanCost)
	if len(costIDs) > 0 {
		loaded, err := s.planCostsByID(ctx, costIDs)
		if err != nil {
			return err
		}
		for i := range loaded {
			costs[loaded[i].ID] = &loaded[i]
		}
	}

	retries := make(map[int64]*billing.PaymentRetry)
	if len(retryIDs) > 0 {
		rows, err := s.read().QueryContext(ctx,
			"SELECT "+retryColumns+" FROM payment_retries WHERE id = ANY($1)", pq.Array(retryIDs))
		if err != nil {
			return fmt.Errorf("failed to load retries for subscriptions: %w", err)
		}
		for rows.Next() {
			r, err := scanRetry(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan payment retry: %w", err)
			}
			retries[r.ID] = &r
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to load retries for subscriptions: %w", err)
		}
	}

	for i := range subs {
		if subs[i].PlanCostID != nil {
			subs[i].PlanCost = costs[*subs[i].PlanCostID]
		}
		if subs[i].RetryID != nil {
			subs[i].Retry = retries[*subs[i].RetryID]
		}
	}
	return nil
}
