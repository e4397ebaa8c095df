package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const planCostColumns = "pc.id, pc.plan_id, pc.slug, pc.recurrence_period, pc.recurrence_unit, pc.currency_id, pc.cost, pc.active"

var planCostList = listSpec{
	from:    "plan_costs pc JOIN subscription_plans p ON p.id = pc.plan_id",
	columns: planCostColumns,
	search:  []string{"p.plan_name", "pc.slug"},
	filters: map[string]string{
		"plan": "pc.plan_id", "active": "pc.active", "currency": "pc.currency_id",
		"recurrence_unit": "pc.recurrence_unit", "slug": "pc.slug",
	},
	orderings: map[string]string{
		"recurrence_unit": "pc.recurrence_unit", "recurrence_period": "pc.recurrence_period",
		"cost": "pc.cost", "plan": "p.plan_name", "slug": "pc.slug",
	},
	defaultOrder: "pc.recurrence_unit ASC, pc.recurrence_period ASC, pc.cost ASC",
}

func scanPlanCost(row rowScanner) (billing.PlanCost, error) {
	var c billing.PlanCost
	err := row.Scan(&c.ID, &c.PlanID, &c.Slug, &c.RecurrencePeriod, &c.RecurrenceUnit, &c.CurrencyID, &c.Cost, &c.Active)
	return c, err
}

// CreatePlanCost inserts a plan cost
func (s *Store) CreatePlanCost(ctx context.Context, cost *billing.PlanCost) error {
	if cost.ID == uuid.Nil {
		cost.ID = uuid.New()
	}
	if err := cost.Validate(); err != nil {
		return fmt.Errorf("%w: plan cost: %w", storage.ErrInvalid, err)
	}
	_, err := s.write().ExecContext(ctx, `
		INSERT INTO plan_costs (id, plan_id, slug, recurrence_period, recurrence_unit, currency_id, cost, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cost.ID, cost.PlanID, cost.Slug, cost.RecurrencePeriod, cost.RecurrenceUnit, cost.CurrencyID, cost.Cost, cost.Active,
	)
	return wrapError(err, "create plan cost")
}

// GetPlanCost returns a plan cost with its plan and currency
func (s *Store) GetPlanCost(ctx context.Context, id uuid.UUID) (*billing.PlanCost, error) {
	c, err := scanPlanCost(s.read().QueryRowContext(ctx,
		"SELECT "+planCostColumns+" FROM plan_costs pc WHERE pc.id = $1", id))
	if err != nil {
		return nil, wrapError(err, "get plan cost")
	}
	if err := s.loadCostRelations(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPlanCosts lists plan costs with their plan and currency
func (s *Store) ListPlanCosts(ctx context.Context, opts storage.ListOptions) ([]billing.PlanCost, int64, error) {
	costs, total, err := list(ctx, s.read(), planCostList, opts, "plan costs", scanPlanCost)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachCostRelations(ctx, costs); err != nil {
		return nil, 0, err
	}
	return costs, total, nil
}

// UpdatePlanCost saves a plan cost
func (s *Store) UpdatePlanCost(ctx context.Context, cost *billing.PlanCost) error {
	if err := cost.Validate(); err != nil {
		return fmt.Errorf("%w: plan cost: %w", storage.ErrInvalid, err)
	}
	res, err := s.write().ExecContext(ctx, `
		UPDATE plan_costs
		SET plan_id = $1, slug = $2, recurrence_period = $3, recurrence_unit = $4, currency_id = $5, cost = $6, active = $7
		WHERE id = $8`,
		cost.PlanID, cost.Slug, cost.RecurrencePeriod, cost.RecurrenceUnit, cost.CurrencyID, cost.Cost, cost.Active, cost.ID,
	)
	if err != nil {
		return wrapError(err, "update plan cost")
	}
	return expectAffected(res, "update plan cost")
}

// DeletePlanCost deletes a plan cost and its subscriptions
func (s *Store) DeletePlanCost(ctx context.Context, id uuid.UUID) error {
	res, err := s.write().ExecContext(ctx, "DELETE FROM plan_costs WHERE id = $1", id)
	if err != nil {
		return wrapError(err, "delete plan cost")
	}
	return expectAffected(res, "delete plan cost")
}

// BasicPlanCost returns the free plan cost of a group's plans.
// With several free costs the first in default ordering wins.
func (s *Store) BasicPlanCost(ctx context.Context, groupID *int64) (*billing.PlanCost, error) {
	if groupID == nil {
		group, err := s.GetOrCreateGroup(ctx, billing.DefaultGroupName)
		if err != nil {
			return nil, err
		}
		groupID = &group.ID
	}

	c, err := scanPlanCost(s.read().QueryRowContext(ctx, `
		SELECT `+planCostColumns+` FROM plan_costs pc
		JOIN subscription_plans p ON p.id = pc.plan_id
		WHERE p.group_id = $1 AND pc.cost = 0
		ORDER BY pc.recurrence_unit, pc.recurrence_period
		LIMIT 1`, *groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get basic plan cost: %w", err)
	}
	if err := s.loadCostRelations(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadCostRelations fills Plan and Currency for a single cost
func (s *Store) loadCostRelations(ctx context.Context, c *billing.PlanCost) error {
	p, err := scanPlan(s.read().QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM "+planList.from+" WHERE p.id = $1", c.PlanID))
	if err != nil {
		return wrapError(err, "get plan for cost")
	}
	c.Plan = &p

	if c.CurrencyID != nil {
		cur, err := s.GetCurrency(ctx, *c.CurrencyID)
		if err != nil {
			return err
		}
		c.Currency = cur
	}
	return nil
}

// attachCostRelations fills Plan and Currency for many costs with two queries
func (s *Store) attachCostRelations(ctx context.Context, costs []billing.PlanCost) error {
	if len(costs) == 0 {
		return nil
	}

	planIDs := make([]string, 0, len(costs))
	currencyIDs := make([]int64, 0, len(costs))
	seenPlan := make(map[uuid.UUID]bool)
	seenCurrency := make(map[int64]bool)
	for _, c := range costs {
		if !seenPlan[c.PlanID] {
			seenPlan[c.PlanID] = true
			planIDs = append(planIDs, c.PlanID.String())
		}
		if c.CurrencyID != nil && !seenCurrency[*c.CurrencyID] {
			seenCurrency[*c.CurrencyID] = true
			currencyIDs = append(currencyIDs, *c.CurrencyID)
		}
	}

	plans := make(map[uuid.UUID]*billing.SubscriptionPlan)
	rows, err := s.read().QueryContext(ctx,
		"SELECT "+planColumns+" FROM "+planList.from+" WHERE p.id = ANY($1::uuid[])", pq.Array(planIDs))
	if err != nil {
		return fmt.Errorf("failed to load plans for costs: %w", err)
	}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan plan: %w", err)
		}
		plans[p.ID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load plans for costs: %w", err)
	}

	currencies := make(map[int64]*currency.PaymentCurrency)
	if len(currencyIDs) > 0 {
		rows, err := s.read().QueryContext(ctx,
			"SELECT "+currencyColumns+" FROM payment_currencies WHERE id = ANY($1)", pq.Array(currencyIDs))
		if err != nil {
			return fmt.Errorf("failed to load currencies for costs: %w", err)
		}
		for rows.Next() {
			c, err := scanCurrency(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan currency: %w", err)
			}
			currencies[c.ID] = &c
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to load currencies for costs: %w", err)
		}
	}

	for i := range costs {
		costs[i].Plan = plans[costs[i].PlanID]
		if costs[i].CurrencyID != nil {
			costs[i].Currency = currencies[*costs[i].CurrencyID]
		}
	}
	return nil
}

// planCostsByID loads plan costs with their relations in one pass
func (s *Store) planCostsByID(ctx context.Context, ids []string) ([]billing.PlanCost, error) {
	rows, err := s.read().QueryContext(ctx,
		"SELECT "+planCostColumns+" FROM plan_costs pc WHERE pc.id = ANY($1::uuid[])", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load plan costs: %w", err)
	}
	costs := []billing.PlanCost{}
	for rows.Next() {
		c, err := scanPlanCost(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan plan cost: %w", err)
		}
		costs = append(costs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load plan costs: %w", err)
	}
	if err := s.attachCostRelations(ctx, costs); err != nil {
		return nil, err
	}
	return costs, nil
}
