package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const planListColumns = "id, title, slug, subtitle, header, footer, active"

var planListList = listSpec{
	from:    "plan_lists",
	columns: planListColumns,
	search:  []string{"title", "slug", "subtitle"},
	filters: map[string]string{"active": "active", "slug": "slug"},
	orderings: map[string]string{
		"id": "id", "title": "title", "slug": "slug", "active": "active",
	},
	defaultOrder: "title ASC, id ASC",
}

func scanPlanList(row rowScanner) (billing.PlanList, error) {
	var l billing.PlanList
	err := row.Scan(&l.ID, &l.Title, &l.Slug, &l.Subtitle, &l.Header, &l.Footer, &l.Active)
	return l, err
}

const (
	planListDetailColumns = `d.id, d.plan_cost_id, d.plan_list_id, d.html_content, d.subscribe_button_text,
		d.display_order, d.active, l.title`
	planListDetailFrom = "plan_list_details d JOIN plan_lists l ON l.id = d.plan_list_id"
)

func scanPlanListDetail(row rowScanner) (billing.PlanListDetail, error) {
	var d billing.PlanListDetail
	err := row.Scan(&d.ID, &d.PlanCostID, &d.PlanListID, &d.HTMLContent, &d.SubscribeButtonText, &d.Order, &d.Active,
		&d.PlanListTitle)
	return d, err
}

// CreatePlanList inserts a plan list
func (s *Store) CreatePlanList(ctx context.Context, l *billing.PlanList) error {
	err := s.write().QueryRowContext(ctx, `
		INSERT INTO plan_lists (title, slug, subtitle, header, footer, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		l.Title, l.Slug, l.Subtitle, l.Header, l.Footer, l.Active,
	).Scan(&l.ID)
	return wrapError(err, "create plan list")
}

// GetPlanList returns a plan list with all of its details
func (s *Store) GetPlanList(ctx context.Context, id int64) (*billing.PlanList, error) {
	l, err := scanPlanList(s.read().QueryRowContext(ctx,
		"SELECT "+planListColumns+" FROM plan_lists WHERE id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get plan list")
	}
	if l.Details, err = s.ListPlanListDetails(ctx, l.ID, false); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetPlanListBySlug returns an active plan list with its active details
func (s *Store) GetPlanListBySlug(ctx context.Context, slug string) (*billing.PlanList, error) {
	l, err := scanPlanList(s.read().QueryRowContext(ctx,
		"SELECT "+planListColumns+" FROM plan_lists WHERE slug = $1 AND active = TRUE", slug))
	if err != nil {
		return nil, wrapError(err, "get plan list "+slug)
	}
	if l.Details, err = s.ListPlanListDetails(ctx, l.ID, true); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListPlanLists lists plan lists without details
func (s *Store) ListPlanLists(ctx context.Context, opts storage.ListOptions) ([]billing.PlanList, int64, error) {
	return list(ctx, s.read(), planListList, opts, "plan lists", scanPlanList)
}

// UpdatePlanList saves a plan list
func (s *Store) UpdatePlanList(ctx context.Context, l *billing.PlanList) error {
	res, err := s.write().ExecContext(ctx, `
		UPDATE plan_lists SET title = $1, slug = $2, subtitle = $3, header = $4, footer = $5, active = $6
		WHERE id = $7`,
		l.Title, l.Slug, l.Subtitle, l.Header, l.Footer, l.Active, l.ID,
	)
	if err != nil {
		return wrapError(err, "update plan list")
	}
	return expectAffected(res, "update plan list")
}

// DeletePlanList deletes a plan list and its details
func (s *Store) DeletePlanList(ctx context.Context, id int64) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM plan_lists WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete plan list")
	}
	return expectAffected(res, "delete plan list")
}

// CreatePlanListDetail inserts a detail
func (s *Store) CreatePlanListDetail(ctx context.Context, d *billing.PlanListDetail) error {
	err := s.write().QueryRowContext(ctx, `
		INSERT INTO plan_list_details (plan_cost_id, plan_list_id, html_content, subscribe_button_text, display_order, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		d.PlanCostID, d.PlanListID, d.HTMLContent, d.SubscribeButtonText, d.Order, d.Active,
	).Scan(&d.ID)
	return wrapError(err, "create plan list detail")
}

// GetPlanListDetail returns a detail with its plan cost
func (s *Store) GetPlanListDetail(ctx context.Context, id int64) (*billing.PlanListDetail, error) {
	d, err := scanPlanListDetail(s.read().QueryRowContext(ctx,
		"SELECT "+planListDetailColumns+" FROM "+planListDetailFrom+" WHERE d.id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get plan list detail")
	}
	if d.PlanCost, err = s.GetPlanCost(ctx, d.PlanCostID); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPlanListDetails returns a list's details by display order, each with its plan cost
func (s *Store) ListPlanListDetails(ctx context.Context, planListID int64, activeOnly bool) ([]billing.PlanListDetail, error) {
	query := "SELECT " + planListDetailColumns + " FROM " + planListDetailFrom + " WHERE d.plan_list_id = $1"
	if activeOnly {
		query += " AND d.active = TRUE"
	}
	query += " ORDER BY d.display_order ASC, d.id ASC"

	rows, err := s.read().QueryContext(ctx, query, planListID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan list details: %w", err)
	}
	details := []billing.PlanListDetail{}
	for rows.Next() {
		d, err := scanPlanListDetail(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan plan list detail: %w", err)
		}
		details = append(details, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plan list details: %w", err)
	}
	if len(details) == 0 {
		return details, nil
	}

	ids := make([]string, 0, len(details))
	seen := make(map[string]bool)
	for _, d := range details {
		if id := d.PlanCostID.String(); !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	costs, err := s.planCostsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*billing.PlanCost, len(costs))
	for i := range costs {
		byID[costs[i].ID.String()] = &costs[i]
	}
	for i := range details {
		details[i].PlanCost = byID[details[i].PlanCostID.String()]
	}
	return details, nil
}

// UpdatePlanListDetail saves a detail
func (s *Store) UpdatePlanListDetail(ctx context.Context, d *billing.PlanListDetail) error {
	res, err := s.write().ExecContext(ctx, `
		UPDATE plan_list_details
		SET plan_cost_id = $1, plan_list_id = $2, html_content = $3, subscribe_button_text = $4,
			display_order = $5, active = $6
		WHERE id = $7`,
		d.PlanCostID, d.PlanListID, d.HTMLContent, d.SubscribeButtonText, d.Order, d.Active, d.ID,
	)
	if err != nil {
		return wrapError(err, "update plan list detail")
	}
	return expectAffected(res, "update plan list detail")
}

// DeletePlanListDetail deletes a detail
func (s *Store) DeletePlanListDetail(ctx context.Context, id int64) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM plan_list_details WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete plan list detail")
	}
	return expectAffected(res, "delete plan list detail")
}
