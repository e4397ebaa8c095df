package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// Connections provides the write and read pools used by Store
type Connections interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

type singleDB struct{ db *sql.DB }

func (s singleDB) Primary() *sql.DB { return s.db }
func (s singleDB) Replica() *sql.DB { return s.db }

// Store implements storage.Store on PostgreSQL
type Store struct {
	conns Connections
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store that writes to the primary and reads from replicas
func NewStore(conns Connections) *Store {
	return &Store{conns: conns}
}

// NewStoreFromDB creates a store backed by a single pool
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{conns: singleDB{db: db}}
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.Primary().PingContext(ctx)
}

func (s *Store) write() *sql.DB { return s.conns.Primary() }
func (s *Store) read() *sql.DB  { return s.conns.Replica() }

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing when it returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.write().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// wrapError maps driver errors onto the storage sentinels
func wrapError(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %s", action, storage.ErrConflict, pqErr.Detail)
		case "23503":
			return fmt.Errorf("%s: %w: %s", action, storage.ErrInvalidReference, pqErr.Detail)
		case "22P02", "22003", "22007", "22008", "23514":
			// malformed input, out of range values and check violations
			return fmt.Errorf("%s: %w: %s", action, storage.ErrInvalid, pqErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// expectAffected turns an update/delete that touched nothing into ErrNotFound
func expectAffected(res sql.Result, action string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", action, storage.ErrNotFound)
	}
	return nil
}

// listSpec describes how a record type is searched, filtered and ordered
type listSpec struct {
	from         string
	columns      string
	search       []string
	filters      map[string]string
	orderings    map[string]string
	defaultOrder string
}

type listQuery struct {
	query     string
	args      []any
	count     string
	countArgs []any
}

func (l listSpec) build(opts storage.ListOptions) (listQuery, error) {
	var where []string
	var args []any

	if opts.Search != "" && len(l.search) > 0 {
		ors := make([]string, 0, len(l.search))
		for _, col := range l.search {
			args = append(args, "%"+opts.Search+"%")
			ors = append(ors, fmt.Sprintf("%s ILIKE $%d", col, len(args)))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	keys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, ok := l.filters[k]
		if !ok {
			return listQuery{}, fmt.Errorf("%w: unknown filter %q", storage.ErrInvalidQuery, k)
		}
		v := opts.Filters[k]
		if v == "" {
			where = append(where, col+" IS NULL")
			continue
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	order := l.defaultOrder
	if len(opts.Ordering) > 0 {
		parts := make([]string, 0, len(opts.Ordering))
		for _, o := range opts.Ordering {
			name, dir := o, "ASC"
			if strings.HasPrefix(o, "-") {
				name, dir = o[1:], "DESC"
			}
			col, ok := l.orderings[name]
			if !ok {
				return listQuery{}, fmt.Errorf("%w: unknown ordering %q", storage.ErrInvalidQuery, name)
			}
			parts = append(parts, col+" "+dir)
		}
		order = strings.Join(parts, ", ")
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	q := listQuery{
		query:     "SELECT " + l.columns + " FROM " + l.from + whereSQL + " ORDER BY " + order,
		count:     "SELECT COUNT(*) FROM " + l.from + whereSQL,
		countArgs: args,
		args:      args,
	}
	if opts.Limit > 0 {
		q.args = append(append([]any(nil), args...), opts.Limit, opts.Offset)
		q.query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	}
	return q, nil
}

// list runs a listSpec query, scanning each row with scan
func list[T any](ctx context.Context, db querier, spec listSpec, opts storage.ListOptions, what string, scan func(rowScanner) (T, error)) ([]T, int64, error) {
	q, err := spec.build(opts)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.QueryRowContext(ctx, q.count, q.countArgs...).Scan(&total); err != nil {
		return nil, 0, wrapError(err, "count "+what)
	}

	rows, err := db.QueryContext(ctx, q.query, q.args...)
	if err != nil {
		return nil, 0, wrapError(err, "list "+what)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate %s: %w", what, err)
	}
	return items, total, nil
}
