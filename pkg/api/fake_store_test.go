package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

type fakeStore struct {
	lists     map[string]*billing.PlanList
	details   map[int64][]billing.PlanListDetail
	costs     map[uuid.UUID]*billing.PlanCost
	subs      []billing.UserSubscription
	costCalls int
	lastOpts  storage.ListOptions
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists:   make(map[string]*billing.PlanList),
		details: make(map[int64][]billing.PlanListDetail),
		costs:   make(map[uuid.UUID]*billing.PlanCost),
	}
}

func (f *fakeStore) GetPlanListBySlug(_ context.Context, slug string) (*billing.PlanList, error) {
	if f.err != nil {
		return nil, f.err
	}
	list, ok := f.lists[slug]
	if !ok {
		return nil, fmt.Errorf("plan list %q: %w", slug, storage.ErrNotFound)
	}
	return list, nil
}

func (f *fakeStore) ListPlanListDetails(_ context.Context, planListID int64, activeOnly bool) ([]billing.PlanListDetail, error) {
	var out []billing.PlanListDetail
	for _, d := range f.details[planListID] {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) GetPlanCost(_ context.Context, id uuid.UUID) (*billing.PlanCost, error) {
	f.costCalls++
	cost, ok := f.costs[id]
	if !ok {
		return nil, fmt.Errorf("plan cost %s: %w", id, storage.ErrNotFound)
	}
	return cost, nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, opts storage.ListOptions) ([]billing.UserSubscription, int64, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []billing.UserSubscription
	for _, sub := range f.subs {
		if user, ok := opts.Filters["user"]; ok && (sub.UserID == nil || strconv.FormatInt(*sub.UserID, 10) != user) {
			continue
		}
		if opts.Filters["active"] == "true" && !sub.Active {
			continue
		}
		out = append(out, sub)
	}
	return out, int64(len(out)), nil
}
