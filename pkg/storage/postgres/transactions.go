package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const transactionColumns = "t.id, t.user_id, t.plan_cost_id, t.date_transaction, t.amount, t.transaction_type"

var transactionList = listSpec{
	from: `subscription_transactions t
		LEFT JOIN plan_costs pc ON pc.id = t.plan_cost_id
		LEFT JOIN subscription_plans p ON p.id = pc.plan_id`,
	columns: transactionColumns,
	search:  []string{"p.plan_name"},
	filters: map[string]string{
		"user": "t.user_id", "subscription": "t.plan_cost_id", "transaction_type": "t.transaction_type",
	},
	orderings: map[string]string{
		"date_transaction": "t.date_transaction", "user": "t.user_id", "amount": "t.amount",
		"transaction_type": "t.transaction_type",
	},
	defaultOrder: "t.date_transaction ASC, t.user_id ASC",
}

func scanTransaction(row rowScanner) (billing.SubscriptionTransaction, error) {
	var t billing.SubscriptionTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.PlanCostID, &t.DateTransaction, &t.Amount, &t.TransactionType)
	t.DateTransaction = t.DateTransaction.UTC()
	return t, err
}

func insertTransaction(ctx context.Context, db querier, txn *billing.SubscriptionTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.TransactionType == "" {
		txn.TransactionType = billing.TransactionPayment
	}
	if txn.DateTransaction.IsZero() {
		txn.DateTransaction = time.Now()
	}
	txn.DateTransaction = txn.DateTransaction.UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO subscription_transactions (id, user_id, plan_cost_id, date_transaction, amount, transaction_type)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID, txn.UserID, txn.PlanCostID, txn.DateTransaction, txn.Amount, txn.TransactionType,
	)
	return wrapError(err, "create subscription transaction")
}

// CreateTransaction inserts a transaction
func (s *Store) CreateTransaction(ctx context.Context, txn *billing.SubscriptionTransaction) error {
	return insertTransaction(ctx, s.write(), txn)
}

// GetTransaction returns a transaction with its plan cost
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*billing.SubscriptionTransaction, error) {
	t, err := scanTransaction(s.read().QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM subscription_transactions t WHERE t.id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get subscription transaction")
	}
	if t.PlanCostID != nil {
		if t.PlanCost, err = s.GetPlanCost(ctx, *t.PlanCostID); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// ListTransactions lists transactions by date
func (s *Store) ListTransactions(ctx context.Context, opts storage.ListOptions) ([]billing.SubscriptionTransaction, int64, error) {
	txns, total, err := list(ctx, s.read(), transactionList, opts, "subscription transactions", scanTransaction)
	if err != nil || len(txns) == 0 {
		return txns, total, err
	}

	ids := []string{}
	seen := make(map[uuid.UUID]bool)
	for _, t := range txns {
		if t.PlanCostID != nil && !seen[*t.PlanCostID] {
			seen[*t.PlanCostID] = true
			ids = append(ids, t.PlanCostID.String())
		}
	}
	if len(ids) == 0 {
		return txns, total, nil
	}
	costs, err := s.planCostsByID(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]*billing.PlanCost, len(costs))
	for i := range costs {
		byID[costs[i].ID] = &costs[i]
	}
	for i := range txns {
		if txns[i].PlanCostID != nil {
			txns[i].PlanCost = byID[*txns[i].PlanCostID]
		}
	}
	return txns, total, nil
}

// UpdateTransaction saves a transaction
func (s *Store) UpdateTransaction(ctx context.Context, txn *billing.SubscriptionTransaction) error {
	res, err := s.write().ExecContext(ctx, `
		UPDATE subscription_transactions
		SET user_id = $1, plan_cost_id = $2, date_transaction = $3, amount = $4, transaction_type = $5
		WHERE id = $6`,
		txn.UserID, txn.PlanCostID, txn.DateTransaction.UTC(), txn.Amount, txn.TransactionType, txn.ID,
	)
	if err != nil {
		return wrapError(err, "update subscription transaction")
	}
	return expectAffected(res, "update subscription transaction")
}

// DeleteTransaction deletes a transaction
func (s *Store) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM subscription_transactions WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete subscription transaction")
	}
	return expectAffected(res, "delete subscription transaction")
}
