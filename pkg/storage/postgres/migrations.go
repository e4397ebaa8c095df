package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema history in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create auth groups",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(150) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS auth_user_groups (
					user_id BIGINT NOT NULL,
					group_id BIGINT NOT NULL REFERENCES auth_groups(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, group_id)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create plan catalogue",
			SQL: `
				CREATE TABLE IF NOT EXISTS payment_retries (
					id BIGSERIAL PRIMARY KEY,
					iteration SMALLINT NOT NULL CHECK (iteration >= 0),
					retry_offset SMALLINT NOT NULL CHECK (retry_offset >= 0)
				);

				CREATE TABLE IF NOT EXISTS plan_tags (
					id BIGSERIAL PRIMARY KEY,
					tag VARCHAR(64) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS subscription_plans (
					id UUID PRIMARY KEY,
					plan_name VARCHAR(128) NOT NULL,
					slug VARCHAR(128) UNIQUE,
					plan_description VARCHAR(512) NOT NULL DEFAULT '',
					group_id BIGINT REFERENCES auth_groups(id) ON DELETE SET NULL,
					grace_period INTEGER NOT NULL DEFAULT 0 CHECK (grace_period >= 0)
				);

				CREATE TABLE IF NOT EXISTS subscription_plan_tags (
					plan_id UUID NOT NULL REFERENCES subscription_plans(id) ON DELETE CASCADE,
					tag_id BIGINT NOT NULL REFERENCES plan_tags(id) ON DELETE CASCADE,
					PRIMARY KEY (plan_id, tag_id)
				);

				CREATE TABLE IF NOT EXISTS payment_currencies (
					id BIGSERIAL PRIMARY KEY,
					locale VARCHAR(5) NOT NULL,
					currency_symbol VARCHAR(8) NOT NULL,
					int_curr_symbol VARCHAR(8) NOT NULL,
					p_cs_precedes BOOLEAN NOT NULL DEFAULT TRUE,
					n_cs_precedes BOOLEAN NOT NULL DEFAULT TRUE,
					p_sep_by_space BOOLEAN NOT NULL DEFAULT TRUE,
					n_sep_by_space BOOLEAN NOT NULL DEFAULT TRUE,
					mon_decimal_point VARCHAR(1) NOT NULL,
					mon_thousands_sep VARCHAR(1) NOT NULL,
					mon_grouping SMALLINT NOT NULL DEFAULT 3,
					frac_digits SMALLINT NOT NULL DEFAULT 2,
					int_frac_digits SMALLINT NOT NULL DEFAULT 2,
					positive_sign VARCHAR(1) DEFAULT '',
					negative_sign VARCHAR(1) NOT NULL DEFAULT '-',
					p_sign_posn CHAR(1) NOT NULL DEFAULT '0' CHECK (p_sign_posn IN ('0', '1', '2', '3', '4')),
					n_sign_posn CHAR(1) NOT NULL DEFAULT '0' CHECK (n_sign_posn IN ('0', '1', '2', '3', '4'))
				);
			`,
		},
		{
			Version:     3,
			Description: "Create plan costs, subscriptions and transactions",
			SQL: `
				CREATE TABLE IF NOT EXISTS plan_costs (
					id UUID PRIMARY KEY,
					plan_id UUID NOT NULL REFERENCES subscription_plans(id) ON DELETE CASCADE,
					slug VARCHAR(128) UNIQUE,
					recurrence_period SMALLINT NOT NULL DEFAULT 1 CHECK (recurrence_period >= 1),
					recurrence_unit CHAR(1) NOT NULL DEFAULT '6' CHECK (recurrence_unit IN ('0', '1', '2', '3', '4', '5', '6', '7')),
					currency_id BIGINT REFERENCES payment_currencies(id) ON DELETE CASCADE,
					cost NUMERIC(19, 4),
					active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE TABLE IF NOT EXISTS user_subscriptions (
					id UUID PRIMARY KEY,
					user_id BIGINT,
					plan_cost_id UUID REFERENCES plan_costs(id) ON DELETE CASCADE,
					date_billing_start TIMESTAMP,
					date_billing_end TIMESTAMP,
					date_billing_last TIMESTAMP,
					date_billing_next TIMESTAMP,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					cancelled BOOLEAN NOT NULL DEFAULT FALSE,
					renewal_status CHAR(1) NOT NULL DEFAULT 'R' CHECK (renewal_status IN ('R', 'T', 'F')),
					retry_id BIGINT REFERENCES payment_retries(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS subscription_transactions (
					id UUID PRIMARY KEY,
					user_id BIGINT,
					plan_cost_id UUID REFERENCES plan_costs(id) ON DELETE SET NULL,
					date_transaction TIMESTAMP NOT NULL,
					amount NUMERIC(19, 4),
					transaction_type VARCHAR(2) NOT NULL DEFAULT 'P' CHECK (transaction_type IN ('P', 'R', 'C'))
				);
			`,
		},
		{
			Version:     4,
			Description: "Create plan lists",
			SQL: `
				CREATE TABLE IF NOT EXISTS plan_lists (
					id BIGSERIAL PRIMARY KEY,
					title TEXT NOT NULL DEFAULT '',
					slug VARCHAR(128) UNIQUE,
					subtitle TEXT NOT NULL DEFAULT '',
					header TEXT NOT NULL DEFAULT '',
					footer TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE TABLE IF NOT EXISTS plan_list_details (
					id BIGSERIAL PRIMARY KEY,
					plan_cost_id UUID NOT NULL REFERENCES plan_costs(id) ON DELETE CASCADE,
					plan_list_id BIGINT NOT NULL REFERENCES plan_lists(id) ON DELETE CASCADE,
					html_content TEXT NOT NULL DEFAULT '',
					subscribe_button_text VARCHAR(128) NOT NULL DEFAULT 'Subscribe',
					display_order INTEGER NOT NULL DEFAULT 1 CHECK (display_order >= 0),
					active BOOLEAN NOT NULL DEFAULT TRUE
				);
			`,
		},
		{
			Version:     5,
			Description: "Add renewal indexes",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_payment_retries_iteration ON payment_retries(iteration);
				CREATE INDEX IF NOT EXISTS idx_plan_costs_plan_id ON plan_costs(plan_id);
				CREATE INDEX IF NOT EXISTS idx_user_subscriptions_user ON user_subscriptions(user_id, date_billing_start);
				CREATE INDEX IF NOT EXISTS idx_user_subscriptions_next ON user_subscriptions(date_billing_next)
					WHERE active AND NOT cancelled;
				CREATE INDEX IF NOT EXISTS idx_user_subscriptions_renewal ON user_subscriptions(renewal_status)
					WHERE active AND NOT cancelled;
				CREATE INDEX IF NOT EXISTS idx_subscription_transactions_date ON subscription_transactions(date_transaction, user_id);
				CREATE INDEX IF NOT EXISTS idx_plan_list_details_list ON plan_list_details(plan_list_id, display_order);
			`,
		},
		{
			Version:     6,
			Description: "Create admin change history",
			SQL: `
				CREATE TABLE IF NOT EXISTS admin_log_entries (
					id BIGSERIAL PRIMARY KEY,
					action_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					user_id BIGINT,
					username VARCHAR(150) NOT NULL DEFAULT '',
					model VARCHAR(100) NOT NULL,
					object_id TEXT NOT NULL DEFAULT '',
					object_repr VARCHAR(200) NOT NULL,
					action_flag SMALLINT NOT NULL CHECK (action_flag BETWEEN 1 AND 3),
					change_message TEXT NOT NULL DEFAULT '',
					request_id VARCHAR(100) NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_admin_log_entries_object ON admin_log_entries(model, object_id, action_time DESC);
				CREATE INDEX IF NOT EXISTS idx_admin_log_entries_user ON admin_log_entries(user_id, action_time DESC);
			`,
		},
		{
			Version:     7,
			Description: "Track declined renewal attempts",
			SQL: `
				ALTER TABLE user_subscriptions ADD COLUMN IF NOT EXISTS date_billing_attempt TIMESTAMP;
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in subscriptions_migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM subscriptions_migrations ORDER BY version")
	if err != nil {
		return 0, fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	count := 0
	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}

		logger.WithField("version", m.Version).Infof("applying migration: %s", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return count, fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO subscriptions_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
		count++
	}

	return count, nil
}
