package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const retryColumns = "id, iteration, retry_offset"

var retryList = listSpec{
	from:    "payment_retries",
	columns: retryColumns,
	filters: map[string]string{"iteration": "iteration", "retry_offset": "retry_offset"},
	orderings: map[string]string{
		"id": "id", "iteration": "iteration", "retry_offset": "retry_offset",
	},
	defaultOrder: "iteration ASC, id ASC",
}

func scanRetry(row rowScanner) (billing.PaymentRetry, error) {
	var r billing.PaymentRetry
	err := row.Scan(&r.ID, &r.Iteration, &r.RetryOffset)
	return r, err
}

// CreateRetry inserts a retry step
func (s *Store) CreateRetry(ctx context.Context, retry *billing.PaymentRetry) error {
	err := s.write().QueryRowContext(ctx,
		"INSERT INTO payment_retries (iteration, retry_offset) VALUES ($1, $2) RETURNING id",
		retry.Iteration, retry.RetryOffset,
	).Scan(&retry.ID)
	return wrapError(err, "create payment retry")
}

// GetRetry returns a retry step by id
func (s *Store) GetRetry(ctx context.Context, id int64) (*billing.PaymentRetry, error) {
	r, err := scanRetry(s.read().QueryRowContext(ctx,
		"SELECT "+retryColumns+" FROM payment_retries WHERE id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get payment retry")
	}
	return &r, nil
}

// ListRetries lists retry steps by iteration
func (s *Store) ListRetries(ctx context.Context, opts storage.ListOptions) ([]billing.PaymentRetry, int64, error) {
	return list(ctx, s.read(), retryList, opts, "payment retries", scanRetry)
}

// UpdateRetry saves a retry step
func (s *Store) UpdateRetry(ctx context.Context, retry *billing.PaymentRetry) error {
	res, err := s.write().ExecContext(ctx,
		"UPDATE payment_retries SET iteration = $1, retry_offset = $2 WHERE id = $3",
		retry.Iteration, retry.RetryOffset, retry.ID,
	)
	if err != nil {
		return wrapError(err, "update payment retry")
	}
	return expectAffected(res, "update payment retry")
}

// DeleteRetry removes a retry step; subscriptions on it are deleted with it
func (s *Store) DeleteRetry(ctx context.Context, id int64) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM payment_retries WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete payment retry")
	}
	return expectAffected(res, "delete payment retry")
}

// FirstRetry returns the retry with iteration 1
func (s *Store) FirstRetry(ctx context.Context) (*billing.PaymentRetry, error) {
	r, err := s.retryByIteration(ctx, 1)
	if err != nil {
		return nil, wrapError(err, "get first payment retry")
	}
	return r, nil
}

// NextRetry returns the retry following current, or nil at the end of the schedule
func (s *Store) NextRetry(ctx context.Context, current uint16) (*billing.PaymentRetry, error) {
	r, err := s.retryByIteration(ctx, current+1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next payment retry: %w", err)
	}
	return r, nil
}

func (s *Store) retryByIteration(ctx context.Context, iteration uint16) (*billing.PaymentRetry, error) {
	r, err := scanRetry(s.read().QueryRowContext(ctx,
		"SELECT "+retryColumns+" FROM payment_retries WHERE iteration = $1 ORDER BY id LIMIT 1", iteration))
	if err != nil {
		return nil, err
	}
	return &r, nil
}
