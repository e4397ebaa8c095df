package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const currencyColumns = `id, locale, currency_symbol, int_curr_symbol, p_cs_precedes, n_cs_precedes,
	p_sep_by_space, n_sep_by_space, mon_decimal_point, mon_thousands_sep, mon_grouping,
	frac_digits, int_frac_digits, positive_sign, negative_sign, p_sign_posn, n_sign_posn`

var currencyList = listSpec{
	from:    "payment_currencies",
	columns: currencyColumns,
	search:  []string{"locale", "int_curr_symbol", "currency_symbol"},
	filters: map[string]string{"locale": "locale", "int_curr_symbol": "int_curr_symbol"},
	orderings: map[string]string{
		"id": "id", "locale": "locale", "int_curr_symbol": "int_curr_symbol",
	},
	defaultOrder: "locale ASC, id ASC",
}

func scanCurrency(row rowScanner) (currency.PaymentCurrency, error) {
	var c currency.PaymentCurrency
	err := row.Scan(&c.ID, &c.Locale, &c.CurrencySymbol, &c.IntCurrSymbol, &c.PCsPrecedes, &c.NCsPrecedes,
		&c.PSepBySpace, &c.NSepBySpace, &c.MonDecimalPoint, &c.MonThousandsSep, &c.MonGrouping,
		&c.FracDigits, &c.IntFracDigits, &c.PositiveSign, &c.NegativeSign, &c.PSignPosn, &c.NSignPosn)
	return c, err
}

// currencyValues lists the writable columns in currencyColumns order, without id
func currencyValues(c *currency.PaymentCurrency) []any {
	return []any{
		c.Locale, c.CurrencySymbol, c.IntCurrSymbol, c.PCsPrecedes, c.NCsPrecedes,
		c.PSepBySpace, c.NSepBySpace, c.MonDecimalPoint, c.MonThousandsSep, c.MonGrouping,
		c.FracDigits, c.IntFracDigits, c.PositiveSign, c.NegativeSign, c.PSignPosn, c.NSignPosn,
	}
}

const insertCurrencySQL = `
	INSERT INTO payment_currencies (locale, currency_symbol, int_curr_symbol, p_cs_precedes, n_cs_precedes,
		p_sep_by_space, n_sep_by_space, mon_decimal_point, mon_thousands_sep, mon_grouping,
		frac_digits, int_frac_digits, positive_sign, negative_sign, p_sign_posn, n_sign_posn)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id`

const updateCurrencySQL = `
	UPDATE payment_currencies
	SET locale = $1, currency_symbol = $2, int_curr_symbol = $3, p_cs_precedes = $4, n_cs_precedes = $5,
		p_sep_by_space = $6, n_sep_by_space = $7, mon_decimal_point = $8, mon_thousands_sep = $9,
		mon_grouping = $10, frac_digits = $11, int_frac_digits = $12, positive_sign = $13,
		negative_sign = $14, p_sign_posn = $15, n_sign_posn = $16`

// CreateCurrency inserts a currency
func (s *Store) CreateCurrency(ctx context.Context, c *currency.PaymentCurrency) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: currency: %w", storage.ErrInvalid, err)
	}
	err := s.write().QueryRowContext(ctx, insertCurrencySQL, currencyValues(c)...).Scan(&c.ID)
	return wrapError(err, "create payment currency")
}

// GetCurrency returns a currency by id
func (s *Store) GetCurrency(ctx context.Context, id int64) (*currency.PaymentCurrency, error) {
	c, err := scanCurrency(s.read().QueryRowContext(ctx,
		"SELECT "+currencyColumns+" FROM payment_currencies WHERE id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get payment currency")
	}
	return &c, nil
}

// ListCurrencies lists currencies by locale
func (s *Store) ListCurrencies(ctx context.Context, opts storage.ListOptions) ([]currency.PaymentCurrency, int64, error) {
	return list(ctx, s.read(), currencyList, opts, "payment currencies", scanCurrency)
}

// UpdateCurrency saves a currency
func (s *Store) UpdateCurrency(ctx context.Context, c *currency.PaymentCurrency) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: currency: %w", storage.ErrInvalid, err)
	}
	res, err := s.write().ExecContext(ctx, updateCurrencySQL+" WHERE id = $17", append(currencyValues(c), c.ID)...)
	if err != nil {
		return wrapError(err, "update payment currency")
	}
	return expectAffected(res, "update payment currency")
}

// DeleteCurrency deletes a currency and every plan cost priced in it
func (s *Store) DeleteCurrency(ctx context.Context, id int64) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM payment_currencies WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete payment currency")
	}
	return expectAffected(res, "delete payment currency")
}

// SyncCurrencies upserts definitions keyed by locale and returns how many rows changed
func (s *Store) SyncCurrencies(ctx context.Context, defs currency.Definitions) (int, error) {
	changed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, def := range defs.Sorted() {
			def := def
			res, err := tx.ExecContext(ctx, updateCurrencySQL+" WHERE locale = $17",
				append(currencyValues(&def), def.Locale)...)
			if err != nil {
				return wrapError(err, "sync payment currency "+def.Locale)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to sync payment currency %s: %w", def.Locale, err)
			}
			if n == 0 {
				if err := tx.QueryRowContext(ctx, insertCurrencySQL, currencyValues(&def)...).Scan(&def.ID); err != nil {
					return wrapError(err, "insert payment currency "+def.Locale)
				}
				n = 1
			}
			changed += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
