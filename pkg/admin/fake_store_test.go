package admin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// fakeStore keeps plan lists, plans, costs and tags in memory. Calls to
// anything else hit the nil embedded Store and panic.
type fakeStore struct {
	storage.Store

	mu        sync.Mutex
	nextID    int64
	lists     map[int64]billing.PlanList
	details   map[int64]billing.PlanListDetail
	plans     map[uuid.UUID]billing.SubscriptionPlan
	costs     map[uuid.UUID]billing.PlanCost
	tags      map[int64]billing.PlanTag
	lastOpts  storage.ListOptions
	listError error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists:   make(map[int64]billing.PlanList),
		details: make(map[int64]billing.PlanListDetail),
		plans:   make(map[uuid.UUID]billing.SubscriptionPlan),
		costs:   make(map[uuid.UUID]billing.PlanCost),
		tags:    make(map[int64]billing.PlanTag),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func notFound(what string, id interface{}) error {
	return fmt.Errorf("get %s %v: %w", what, id, storage.ErrNotFound)
}

func (f *fakeStore) CreatePlanList(_ context.Context, l *billing.PlanList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.lists {
		if l.Slug != nil && other.Slug != nil && *other.Slug == *l.Slug {
			return fmt.Errorf("create plan list: %w", storage.ErrConflict)
		}
	}
	l.ID = f.id()
	f.lists[l.ID] = *l
	return nil
}

func (f *fakeStore) GetPlanList(_ context.Context, id int64) (*billing.PlanList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return nil, notFound("plan list", id)
	}
	return &l, nil
}

func (f *fakeStore) ListPlanLists(_ context.Context, opts storage.ListOptions) ([]billing.PlanList, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if f.listError != nil {
		return nil, 0, f.listError
	}
	out := make([]billing.PlanList, 0, len(f.lists))
	for _, l := range f.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else {
		out = nil
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, total, nil
}

func (f *fakeStore) UpdatePlanList(_ context.Context, l *billing.PlanList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[l.ID]; !ok {
		return notFound("plan list", l.ID)
	}
	f.lists[l.ID] = *l
	return nil
}

func (f *fakeStore) DeletePlanList(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lists[id]; !ok {
		return notFound("plan list", id)
	}
	delete(f.lists, id)
	return nil
}

func (f *fakeStore) CreatePlanListDetail(_ context.Context, d *billing.PlanListDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.costs[d.PlanCostID]; !ok {
		return fmt.Errorf("create plan list detail: %w", storage.ErrInvalidReference)
	}
	d.ID = f.id()
	f.details[d.ID] = *d
	return nil
}

func (f *fakeStore) GetPlanListDetail(_ context.Context, id int64) (*billing.PlanListDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return nil, notFound("plan list detail", id)
	}
	return &d, nil
}

func (f *fakeStore) ListPlanListDetails(_ context.Context, planListID int64, activeOnly bool) ([]billing.PlanListDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []billing.PlanListDetail{}
	for _, d := range f.details {
		if d.PlanListID == planListID && (!activeOnly || d.Active) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdatePlanListDetail(_ context.Context, d *billing.PlanListDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[d.ID] = *d
	return nil
}

func (f *fakeStore) DeletePlanListDetail(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.details, id)
	return nil
}

func (f *fakeStore) CreatePlan(_ context.Context, p *billing.SubscriptionPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: subscription plan: %w", storage.ErrInvalid, err)
	}
	f.plans[p.ID] = *p
	return nil
}

func (f *fakeStore) GetPlan(_ context.Context, id uuid.UUID) (*billing.SubscriptionPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, notFound("subscription plan", id)
	}
	return &p, nil
}

func (f *fakeStore) ListPlanCosts(_ context.Context, opts storage.ListOptions) ([]billing.PlanCost, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []billing.PlanCost{}
	for _, c := range f.costs {
		if c.PlanID.String() == opts.Filters["plan"] {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) CreatePlanCost(_ context.Context, c *billing.PlanCost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: plan cost: %w", storage.ErrInvalid, err)
	}
	f.costs[c.ID] = *c
	return nil
}

func (f *fakeStore) GetPlanCost(_ context.Context, id uuid.UUID) (*billing.PlanCost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.costs[id]
	if !ok {
		return nil, notFound("plan cost", id)
	}
	return &c, nil
}

func (f *fakeStore) CreateTag(_ context.Context, t *billing.PlanTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.tags {
		if other.Tag == t.Tag {
			return fmt.Errorf("create plan tag: %w", storage.ErrConflict)
		}
	}
	t.ID = f.id()
	f.tags[t.ID] = *t
	return nil
}

func (f *fakeStore) GetTag(_ context.Context, id int64) (*billing.PlanTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tags[id]
	if !ok {
		return nil, notFound("plan tag", id)
	}
	return &t, nil
}

func (f *fakeStore) UpdateTag(_ context.Context, t *billing.PlanTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[t.ID]; !ok {
		return notFound("plan tag", t.ID)
	}
	f.tags[t.ID] = *t
	return nil
}

func (f *fakeStore) DeleteTag(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tags[id]; !ok {
		return notFound("plan tag", id)
	}
	delete(f.tags, id)
	return nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, opts storage.ListOptions) ([]billing.UserSubscription, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	return []billing.UserSubscription{}, 0, f.listError
}

func (f *fakeStore) addCost(planID uuid.UUID) billing.PlanCost {
	c := billing.NewPlanCost(planID)
	f.costs[c.ID] = c
	return c
}
