package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/subscriptions/pkg/billing"
)

// GetGroup returns a group by id
func (s *Store) GetGroup(ctx context.Context, id int64) (*billing.Group, error) {
	var g billing.Group
	err := s.read().QueryRowContext(ctx, "SELECT id, name FROM auth_groups WHERE id = $1", id).Scan(&g.ID, &g.Name)
	if err != nil {
		return nil, wrapError(err, "get group")
	}
	return &g, nil
}

// GetOrCreateGroup returns the named group, creating it when missing
func (s *Store) GetOrCreateGroup(ctx context.Context, name string) (*billing.Group, error) {
	if _, err := s.write().ExecContext(ctx,
		"INSERT INTO auth_groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name,
	); err != nil {
		return nil, wrapError(err, "create group")
	}

	var g billing.Group
	err := s.write().QueryRowContext(ctx, "SELECT id, name FROM auth_groups WHERE name = $1", name).Scan(&g.ID, &g.Name)
	if err != nil {
		return nil, wrapError(err, "get group")
	}
	return &g, nil
}

// ListGroups returns every group ordered by name
func (s *Store) ListGroups(ctx context.Context) ([]billing.Group, error) {
	return s.queryGroups(ctx, "SELECT id, name FROM auth_groups ORDER BY name")
}

// AddUserToGroup grants group membership; adding an existing member is a no-op
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.write().ExecContext(ctx,
		"INSERT INTO auth_user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, groupID,
	)
	return wrapError(err, "add user to group")
}

// RemoveUserFromGroup revokes group membership
func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.write().ExecContext(ctx,
		"DELETE FROM auth_user_groups WHERE user_id = $1 AND group_id = $2", userID, groupID)
	return wrapError(err, "remove user from group")
}

// UserGroups returns the groups a user belongs to
func (s *Store) UserGroups(ctx context.Context, userID int64) ([]billing.Group, error) {
	return s.queryGroups(ctx, `
		SELECT g.id, g.name FROM auth_groups g
		JOIN auth_user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1
		ORDER BY g.name`, userID)
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]billing.Group, error) {
	rows, err := s.read().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []billing.Group{}
	for rows.Next() {
		var g billing.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
