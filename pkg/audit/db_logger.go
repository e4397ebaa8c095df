package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// defaultHistoryLimit caps history queries that do not set a limit
const defaultHistoryLimit = 100

const entryColumns = `id, action_time, user_id, username, model, object_id,
	object_repr, action_flag, change_message, request_id`

// DBLogger stores entries in the admin_log_entries table created by the
// postgres migrations
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts entry and sets its ID
func (l *DBLogger) Log(ctx context.Context, entry *Entry) error {
	if !entry.Action.Valid() {
		return fmt.Errorf("invalid action flag %d", entry.Action)
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO admin_log_entries (
			action_time, user_id, username, model, object_id,
			object_repr, action_flag, change_message, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.ActionTime, entry.UserID, entry.Username, entry.Model, entry.ObjectID,
		entry.ObjectRepr, int(entry.Action), entry.ChangeMessage, entry.RequestID,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert admin log entry: %w", err)
	}
	return nil
}

// History returns matching entries, newest first
func (l *DBLogger) History(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Model != "" {
		add("model = $%d", filter.Model)
	}
	if filter.ObjectID != "" {
		add("object_id = $%d", filter.ObjectID)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := "SELECT " + entryColumns + " FROM admin_log_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY action_time DESC, id DESC LIMIT $%d", len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			userID sql.NullInt64
			action int
		)
		if err := rows.Scan(&e.ID, &e.ActionTime, &userID, &e.Username, &e.Model, &e.ObjectID,
			&e.ObjectRepr, &action, &e.ChangeMessage, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan admin log entry: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			e.UserID = &id
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read admin log entries: %w", err)
	}
	return entries, nil
}

// Close is a no-op; the database handle belongs to the caller
func (l *DBLogger) Close() error {
	return nil
}
