package renewal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/platinummonkey/subscriptions/pkg/webhooks"
	"github.com/shopspring/decimal"
)

type membershipKey struct{ user, group int64 }

type memStore struct {
	mu          sync.Mutex
	subs        map[uuid.UUID]billing.UserSubscription
	retries     []billing.PaymentRetry
	txns        []billing.SubscriptionTransaction
	members     map[membershipKey]bool
	selectErr   map[string]error
	getErr      map[uuid.UUID]error
	selectCalls int
}

func newMemStore() *memStore {
	return &memStore{
		subs:      make(map[uuid.UUID]billing.UserSubscription),
		members:   make(map[membershipKey]bool),
		selectErr: make(map[string]error),
		getErr:    make(map[uuid.UUID]error),
	}
}

func (m *memStore) put(sub billing.UserSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
}

func (m *memStore) sub(id uuid.UUID) billing.UserSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id]
}

func (m *memStore) transactions() []billing.SubscriptionTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]billing.SubscriptionTransaction(nil), m.txns...)
}

func (m *memStore) member(user, group int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[membershipKey{user, group}]
}

func (m *memStore) GetSubscription(_ context.Context, id uuid.UUID) (*billing.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[id]; err != nil {
		return nil, err
	}
	sub, ok := m.subs[id]
	if !ok {
		return nil, fmt.Errorf("get subscription %s: %w", id, storage.ErrNotFound)
	}
	return &sub, nil
}

func (m *memStore) UpdateSubscription(_ context.Context, sub *billing.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = *sub
	return nil
}

func (m *memStore) selectIDs(step string, keep func(billing.UserSubscription) bool) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectCalls++
	if err := m.selectErr[step]; err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, sub := range m.subs {
		if keep(sub) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *memStore) Expired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	return m.selectIDs(StepExpiry, func(s billing.UserSubscription) bool {
		if !s.Active || s.DateBillingEnd == nil {
			return false
		}
		var grace uint32
		if s.PlanCost != nil && s.PlanCost.Plan != nil {
			grace = s.PlanCost.Plan.GracePeriod
		}
		return s.DateBillingEnd.AddDate(0, 0, int(grace)).Before(now)
	})
}

func (m *memStore) Unbilled(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	return m.selectIDs(StepNew, func(s billing.UserSubscription) bool {
		return s.Active && !s.Cancelled && s.DateBillingLast == nil &&
			s.DateBillingStart != nil && !s.DateBillingStart.After(now)
	})
}

func (m *memStore) ToCharge(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	return m.selectIDs(StepDue, func(s billing.UserSubscription) bool {
		return s.Active && !s.Cancelled && s.DateBillingNext != nil && !s.DateBillingNext.After(now)
	})
}

func (m *memStore) FailedRenewals(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	return m.selectIDs(StepRetry, func(s billing.UserSubscription) bool {
		return s.Active && !s.Cancelled && s.RenewalStatus == billing.RenewalRetrying && s.ForRetry(now)
	})
}

func (m *memStore) RecordRenewal(_ context.Context, sub *billing.UserSubscription, txn *billing.SubscriptionTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = *sub
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *memStore) FirstRetry(ctx context.Context) (*billing.PaymentRetry, error) {
	r, err := m.NextRetry(ctx, 0)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("get first retry: %w", storage.ErrNotFound)
	}
	return r, nil
}

func (m *memStore) NextRetry(_ context.Context, current uint16) (*billing.PaymentRetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.retries {
		if r.Iteration == current+1 {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) AddUserToGroup(_ context.Context, userID, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[membershipKey{userID, groupID}] = true
	return nil
}

func (m *memStore) RemoveUserFromGroup(_ context.Context, userID, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, membershipKey{userID, groupID})
	return nil
}

// scriptedCharger declines subscriptions listed in declined
type scriptedCharger struct {
	mu       sync.Mutex
	declined map[uuid.UUID]bool
	charged  map[uuid.UUID][]decimal.Decimal
}

func newScriptedCharger(declined ...uuid.UUID) *scriptedCharger {
	c := &scriptedCharger{declined: make(map[uuid.UUID]bool), charged: make(map[uuid.UUID][]decimal.Decimal)}
	for _, id := range declined {
		c.declined[id] = true
	}
	return c
}

func (c *scriptedCharger) Charge(_ context.Context, sub *billing.UserSubscription, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charged[sub.ID] = append(c.charged[sub.ID], amount)
	if c.declined[sub.ID] {
		return errors.New("card declined")
	}
	return nil
}

func (c *scriptedCharger) calls(id uuid.UUID) []decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charged[id]
}

type fakeLocker struct {
	token      string
	acquireErr error
	released   []string
}

func (l *fakeLocker) AcquireLock(context.Context, string, time.Duration) (string, error) {
	return l.token, l.acquireErr
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

type chargeKey struct{ step, result string }

type fakeRecorder struct {
	mu      sync.Mutex
	runs    []string
	charges map[chargeKey]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{charges: make(map[chargeKey]int)}
}

func (r *fakeRecorder) RecordCacheLookup(context.Context, string, string, bool) {}

func (r *fakeRecorder) RecordRenewalRun(_ context.Context, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, result)
}

func (r *fakeRecorder) RecordRenewalCharge(_ context.Context, step, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charges[chargeKey{step, result}]++
}

func (r *fakeRecorder) RecordCurrencySync(context.Context, int, error) {}

type fakeNotifier struct {
	mu     sync.Mutex
	events map[uuid.UUID][]webhooks.EventType
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(map[uuid.UUID][]webhooks.EventType)}
}

func (n *fakeNotifier) Notify(_ context.Context, event webhooks.EventType, sub *billing.UserSubscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[sub.ID] = append(n.events[sub.ID], event)
}

func (n *fakeNotifier) of(id uuid.UUID) []webhooks.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[id]
}
