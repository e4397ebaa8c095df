package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

var tagList = listSpec{
	from:         "plan_tags",
	columns:      "id, tag",
	search:       []string{"tag"},
	filters:      map[string]string{"tag": "tag"},
	orderings:    map[string]string{"id": "id", "tag": "tag"},
	defaultOrder: "tag ASC",
}

func scanTag(row rowScanner) (billing.PlanTag, error) {
	var t billing.PlanTag
	err := row.Scan(&t.ID, &t.Tag)
	return t, err
}

// CreateTag inserts a tag
func (s *Store) CreateTag(ctx context.Context, tag *billing.PlanTag) error {
	err := s.write().QueryRowContext(ctx,
		"INSERT INTO plan_tags (tag) VALUES ($1) RETURNING id", tag.Tag).Scan(&tag.ID)
	return wrapError(err, "create plan tag")
}

// GetTag returns a tag by id
func (s *Store) GetTag(ctx context.Context, id int64) (*billing.PlanTag, error) {
	t, err := scanTag(s.read().QueryRowContext(ctx, "SELECT id, tag FROM plan_tags WHERE id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get plan tag")
	}
	return &t, nil
}

// ListTags lists tags alphabetically
func (s *Store) ListTags(ctx context.Context, opts storage.ListOptions) ([]billing.PlanTag, int64, error) {
	return list(ctx, s.read(), tagList, opts, "plan tags", scanTag)
}

// UpdateTag renames a tag
func (s *Store) UpdateTag(ctx context.Context, tag *billing.PlanTag) error {
	res, err := s.write().ExecContext(ctx, "UPDATE plan_tags SET tag = $1 WHERE id = $2", tag.Tag, tag.ID)
	if err != nil {
		return wrapError(err, "update plan tag")
	}
	return expectAffected(res, "update plan tag")
}

// DeleteTag removes a tag from every plan and deletes it
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM plan_tags WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete plan tag")
	}
	return expectAffected(res, "delete plan tag")
}

const planColumns = "p.id, p.plan_name, p.slug, p.plan_description, p.group_id, p.grace_period, g.name"

var planList = listSpec{
	from:    "subscription_plans p LEFT JOIN auth_groups g ON g.id = p.group_id",
	columns: planColumns,
	search:  []string{"p.plan_name", "p.slug", "p.plan_description"},
	filters: map[string]string{"group": "p.group_id", "slug": "p.slug"},
	orderings: map[string]string{
		"plan_name": "p.plan_name", "slug": "p.slug", "group": "g.name", "grace_period": "p.grace_period",
	},
	defaultOrder: "p.plan_name ASC",
}

func scanPlan(row rowScanner) (billing.SubscriptionPlan, error) {
	var p billing.SubscriptionPlan
	var groupName sql.NullString
	if err := row.Scan(&p.ID, &p.PlanName, &p.Slug, &p.PlanDescription, &p.GroupID, &p.GracePeriod, &groupName); err != nil {
		return p, err
	}
	if p.GroupID != nil && groupName.Valid {
		p.Group = &billing.Group{ID: *p.GroupID, Name: groupName.String}
	}
	p.Tags = []billing.PlanTag{}
	return p, nil
}

// CreatePlan inserts a plan and its tag links
func (s *Store) CreatePlan(ctx context.Context, plan *billing.SubscriptionPlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: subscription plan: %w", storage.ErrInvalid, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscription_plans (id, plan_name, slug, plan_description, group_id, grace_period)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			plan.ID, plan.PlanName, plan.Slug, plan.PlanDescription, plan.GroupID, plan.GracePeriod,
		)
		if err != nil {
			return wrapError(err, "create subscription plan")
		}
		return setPlanTags(ctx, tx, plan.ID, plan.Tags)
	})
}

// GetPlan returns a plan with its group, tags and costs
func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (*billing.SubscriptionPlan, error) {
	p, err := scanPlan(s.read().QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM "+planList.from+" WHERE p.id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get subscription plan")
	}

	tags, err := s.planTags(ctx, []uuid.UUID{p.ID})
	if err != nil {
		return nil, err
	}
	p.Tags = tags[p.ID]
	if p.Tags == nil {
		p.Tags = []billing.PlanTag{}
	}

	costs, _, err := s.ListPlanCosts(ctx, storage.ListOptions{Filters: map[string]string{"plan": p.ID.String()}})
	if err != nil {
		return nil, err
	}
	for i := range costs {
		costs[i].Plan = nil
	}
	p.Costs = costs

	return &p, nil
}

// ListPlans lists plans with their group and tags
func (s *Store) ListPlans(ctx context.Context, opts storage.ListOptions) ([]billing.SubscriptionPlan, int64, error) {
	plans, total, err := list(ctx, s.read(), planList, opts, "subscription plans", scanPlan)
	if err != nil || len(plans) == 0 {
		return plans, total, err
	}

	ids := make([]uuid.UUID, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	tags, err := s.planTags(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range plans {
		if t, ok := tags[plans[i].ID]; ok {
			plans[i].Tags = t
		}
	}
	return plans, total, nil
}

// UpdatePlan saves a plan and replaces its tag links
func (s *Store) UpdatePlan(ctx context.Context, plan *billing.SubscriptionPlan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: subscription plan: %w", storage.ErrInvalid, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE subscription_plans
			SET plan_name = $1, slug = $2, plan_description = $3, group_id = $4, grace_period = $5
			WHERE id = $6`,
			plan.PlanName, plan.Slug, plan.PlanDescription, plan.GroupID, plan.GracePeriod, plan.ID,
		)
		if err != nil {
			return wrapError(err, "update subscription plan")
		}
		if err := expectAffected(res, "update subscription plan"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM subscription_plan_tags WHERE plan_id = $1", plan.ID); err != nil {
			return wrapError(err, "clear plan tags")
		}
		return setPlanTags(ctx, tx, plan.ID, plan.Tags)
	})
}

// DeletePlan deletes a plan and, through cascades, its costs and their subscriptions
func (s *Store) DeletePlan(ctx context.Context, id uuid.UUID) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM subscription_plans WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete subscription plan")
	}
	return expectAffected(res, "delete subscription plan")
}

func setPlanTags(ctx context.Context, tx *sql.Tx, planID uuid.UUID, tags []billing.PlanTag) error {
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO subscription_plan_tags (plan_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			planID, tag.ID,
		); err != nil {
			return wrapError(err, "link plan tag")
		}
	}
	return nil
}

// planTags loads tags for several plans in one query, ordered by tag
func (s *Store) planTags(ctx context.Context, planIDs []uuid.UUID) (map[uuid.UUID][]billing.PlanTag, error) {
	ids := make([]string, len(planIDs))
	for i, id := range planIDs {
		ids[i] = id.String()
	}

	rows, err := s.read().QueryContext(ctx, `
		SELECT pt.plan_id, t.id, t.tag FROM subscription_plan_tags pt
		JOIN plan_tags t ON t.id = pt.tag_id
		WHERE pt.plan_id = ANY($1::uuid[])
		ORDER BY t.tag`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load plan tags: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]billing.PlanTag)
	for rows.Next() {
		var planID uuid.UUID
		var t billing.PlanTag
		if err := rows.Scan(&planID, &t.ID, &t.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan plan tag: %w", err)
		}
		out[planID] = append(out[planID], t)
	}
	return out, rows.Err()
}
