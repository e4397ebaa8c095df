package renewal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/async"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/platinummonkey/subscriptions/pkg/webhooks"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var renewalTracer = otel.Tracer("subscriptions/renewal")

// Processing steps, in run order
const (
	StepExpiry = "expiry"
	StepNew    = "new"
	StepDue    = "due"
	StepRetry  = "retry"
)

// Store is the part of storage.Store the processor needs
type Store interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*billing.UserSubscription, error)
	UpdateSubscription(ctx context.Context, sub *billing.UserSubscription) error
	Expired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Unbilled(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ToCharge(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	FailedRenewals(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	RecordRenewal(ctx context.Context, sub *billing.UserSubscription, txn *billing.SubscriptionTransaction) error
	FirstRetry(ctx context.Context) (*billing.PaymentRetry, error)
	NextRetry(ctx context.Context, current uint16) (*billing.PaymentRetry, error)
	AddUserToGroup(ctx context.Context, userID, groupID int64) error
	RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error
}

// Locker keeps replicas from running the processor at the same time.
// AcquireLock returns "" when another holder has the lock.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Notifier is told about every subscription a run changed
type Notifier interface {
	Notify(ctx context.Context, event webhooks.EventType, sub *billing.UserSubscription)
}

// Config tunes a Processor
type Config struct {
	Workers       int
	ChargeTimeout time.Duration
	LockKey       string
	LockTTL       time.Duration
}

// Summary counts what one run did
type Summary struct {
	Skipped   bool
	Expired   int
	Activated int
	Renewed   int
	Retrying  int
	Failed    int
	Errors    []error
}

func (s *Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"expired":   s.Expired,
		"activated": s.Activated,
		"renewed":   s.Renewed,
		"retrying":  s.Retrying,
		"failed":    s.Failed,
		"errors":    len(s.Errors),
	}
}

// Option configures a Processor
type Option func(*Processor)

// WithLocker serialises runs through locker
func WithLocker(locker Locker) Option {
	return func(p *Processor) { p.locker = locker }
}

// WithRecorder reports runs and charges to recorder
func WithRecorder(recorder observability.Recorder) Option {
	return func(p *Processor) { p.recorder = recorder }
}

// WithNotifier reports every state change to notifier
func WithNotifier(notifier Notifier) Option {
	return func(p *Processor) { p.notifier = notifier }
}

// Processor expires, bills and retries user subscriptions
type Processor struct {
	store    Store
	charger  Charger
	locker   Locker
	recorder observability.Recorder
	notifier Notifier
	logger   *observability.Logger
	cfg      Config
}

// run holds the state of one Process call. A subscription is acted on by at
// most one step per run.
type run struct {
	*Processor

	mu      sync.Mutex
	summary *Summary
	handled map[uuid.UUID]bool
}

// NewProcessor creates a renewal processor
func NewProcessor(store Store, charger Charger, logger *observability.Logger, cfg Config, opts ...Option) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	p := &Processor{
		store:    store,
		charger:  charger,
		recorder: observability.Recorders{},
		logger:   logger,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one pass over the subscriptions as of now. Per-subscription
// failures are collected in the summary; the returned error reports a step
// that could not run at all.
func (p *Processor) Process(ctx context.Context, now time.Time) (*Summary, error) {
	ctx, span := renewalTracer.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("now", now.UTC().Format(time.RFC3339))),
	)
	defer span.End()

	start := time.Now()
	logger := observability.TraceLogger(ctx, p.logger)

	if p.locker != nil {
		token, err := p.locker.AcquireLock(ctx, p.cfg.LockKey, p.cfg.LockTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to acquire lock")
			p.recorder.RecordRenewalRun(ctx, observability.RunFailed, time.Since(start))
			return nil, fmt.Errorf("failed to acquire renewal lock: %w", err)
		}
		if token == "" {
			logger.Info("Renewal run skipped, another run holds the lock")
			p.recorder.RecordRenewalRun(ctx, observability.RunSkipped, 0)
			return &Summary{Skipped: true}, nil
		}
		defer func() {
			if err := p.locker.ReleaseLock(context.WithoutCancel(ctx), p.cfg.LockKey, token); err != nil {
				logger.WithError(err).Warn("Failed to release renewal lock")
			}
		}()
	}

	summary := &Summary{}
	r := &run{Processor: p, summary: summary, handled: make(map[uuid.UUID]bool)}

	steps := []struct {
		name  string
		ids   func(context.Context, time.Time) ([]uuid.UUID, error)
		apply func(context.Context, *billing.UserSubscription, time.Time) error
	}{
		{StepExpiry, p.store.Expired, r.expire},
		{StepNew, p.store.Unbilled, r.activate},
		{StepDue, p.store.ToCharge, r.renew},
		{StepRetry, p.store.FailedRenewals, r.retry},
	}
	for _, step := range steps {
		if err := r.runStep(ctx, step.name, now, step.ids, step.apply); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step.name+" step failed")
			p.recorder.RecordRenewalRun(ctx, observability.RunFailed, time.Since(start))
			logger.WithError(err).WithFields(summary.fields()).Error("Renewal run failed")
			return summary, err
		}
	}

	span.SetAttributes(
		attribute.Int("renewal.renewed", summary.Renewed),
		attribute.Int("renewal.failed", summary.Failed),
		attribute.Int("renewal.errors", len(summary.Errors)),
	)
	p.recorder.RecordRenewalRun(ctx, observability.RunCompleted, time.Since(start))
	logger.WithFields(summary.fields()).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Renewal run completed")
	return summary, nil
}

func (r *run) runStep(ctx context.Context, step string, now time.Time,
	ids func(context.Context, time.Time) ([]uuid.UUID, error),
	apply func(context.Context, *billing.UserSubscription, time.Time) error) error {

	ctx, span := renewalTracer.Start(ctx, "Step", trace.WithAttributes(attribute.String("step", step)))
	defer span.End()

	found, err := ids(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to select subscriptions")
		return fmt.Errorf("failed to select subscriptions for %s: %w", step, err)
	}
	found = r.unhandled(found)
	span.SetAttributes(attribute.Int("subscriptions", len(found)))
	if len(found) == 0 {
		return nil
	}

	errs := async.Batch(ctx, r.logger, found, r.cfg.Workers, r.cfg.ChargeTimeout, "renewal "+step,
		func(ctx context.Context, id uuid.UUID) error {
			sub, err := r.store.GetSubscription(ctx, id)
			if err != nil {
				return fmt.Errorf("subscription %s: %w", id, err)
			}
			if err := apply(ctx, sub, now); err != nil {
				return fmt.Errorf("subscription %s: %w", id, err)
			}
			return nil
		})

	if len(errs) > 0 {
		r.mu.Lock()
		r.summary.Errors = append(r.summary.Errors, errs...)
		r.mu.Unlock()
	}
	return nil
}

// unhandled drops ids an earlier step already acted on
func (r *run) unhandled(ids []uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !r.handled[id] {
			out = append(out, id)
		}
	}
	return out
}

func (r *run) markHandled(id uuid.UUID) {
	r.mu.Lock()
	r.handled[id] = true
	r.mu.Unlock()
}

func (r *run) count(fn func(*Summary)) {
	r.mu.Lock()
	fn(r.summary)
	r.mu.Unlock()
}

// expire deactivates a subscription past its end date and grace period
func (r *run) expire(ctx context.Context, sub *billing.UserSubscription, _ time.Time) error {
	r.markHandled(sub.ID)
	sub.Active = false
	if err := r.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to deactivate: %w", err)
	}
	if err := r.revokeAccess(ctx, sub); err != nil {
		return err
	}
	r.count(func(s *Summary) { s.Expired++ })
	r.notify(ctx, webhooks.EventExpired, sub)
	return nil
}

// activate takes the first payment of a subscription that was never billed.
// A declined first payment ends the subscription.
func (r *run) activate(ctx context.Context, sub *billing.UserSubscription, now time.Time) error {
	r.markHandled(sub.ID)
	ok, err := r.charge(ctx, StepNew, sub)
	if err != nil {
		return err
	}
	if !ok {
		sub.Active = false
		sub.RenewalStatus = billing.RenewalFailed
		if err := r.store.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("failed to end subscription: %w", err)
		}
		r.count(func(s *Summary) { s.Failed++ })
		r.notify(ctx, webhooks.EventPaymentFailed, sub)
		return nil
	}

	if err := r.recordPayment(ctx, sub, now); err != nil {
		return err
	}
	if err := r.grantAccess(ctx, sub); err != nil {
		return err
	}
	r.count(func(s *Summary) { s.Activated++ })
	r.notify(ctx, webhooks.EventActivated, sub)
	return nil
}

// renew bills a due subscription. Retrying subscriptions are left to retry.
func (r *run) renew(ctx context.Context, sub *billing.UserSubscription, now time.Time) error {
	if sub.RenewalStatus != billing.RenewalRunning {
		return nil
	}
	r.markHandled(sub.ID)

	ok, err := r.charge(ctx, StepDue, sub)
	if err != nil {
		return err
	}
	if ok {
		if err := r.recordPayment(ctx, sub, now); err != nil {
			return err
		}
		r.count(func(s *Summary) { s.Renewed++ })
		r.notify(ctx, webhooks.EventRenewed, sub)
		return nil
	}

	first, err := r.store.FirstRetry(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return r.fail(ctx, sub)
	}
	if err != nil {
		return fmt.Errorf("failed to get first retry: %w", err)
	}
	return r.scheduleRetry(ctx, sub, first, now)
}

// retry re-charges a subscription whose retry offset has elapsed
func (r *run) retry(ctx context.Context, sub *billing.UserSubscription, now time.Time) error {
	r.markHandled(sub.ID)
	ok, err := r.charge(ctx, StepRetry, sub)
	if err != nil {
		return err
	}
	if ok {
		if err := r.recordPayment(ctx, sub, now); err != nil {
			return err
		}
		r.count(func(s *Summary) { s.Renewed++ })
		r.notify(ctx, webhooks.EventRenewed, sub)
		return nil
	}

	var iteration uint16
	if sub.Retry != nil {
		iteration = sub.Retry.Iteration
	}
	next, err := r.store.NextRetry(ctx, iteration)
	if err != nil {
		return fmt.Errorf("failed to get next retry: %w", err)
	}
	if next == nil {
		return r.fail(ctx, sub)
	}
	return r.scheduleRetry(ctx, sub, next, now)
}

// charge reports whether payment for sub went through. Free plan costs are
// not sent to the charger.
func (p *Processor) charge(ctx context.Context, step string, sub *billing.UserSubscription) (bool, error) {
	if sub.PlanCost == nil {
		p.recorder.RecordRenewalCharge(ctx, step, observability.ChargeErrored)
		return false, fmt.Errorf("subscription has no plan cost")
	}

	amount := amountOf(sub.PlanCost)
	if amount.IsZero() {
		p.recorder.RecordRenewalCharge(ctx, step, observability.ChargeSucceeded)
		return true, nil
	}

	if err := p.charger.Charge(ctx, sub, amount); err != nil {
		observability.TraceLogger(ctx, p.logger).WithError(err).WithFields(map[string]interface{}{
			"subscription_id": sub.ID.String(),
			"step":            step,
			"amount":          amount.String(),
		}).Warn("Charge declined")
		p.recorder.RecordRenewalCharge(ctx, step, observability.ChargeFailed)
		return false, nil
	}
	p.recorder.RecordRenewalCharge(ctx, step, observability.ChargeSucceeded)
	return true, nil
}

// recordPayment saves a successful billing and its PAYMENT transaction.
// One-time costs are never billed again but stay active.
func (p *Processor) recordPayment(ctx context.Context, sub *billing.UserSubscription, now time.Time) error {
	billed := now
	sub.DateBillingLast = &billed
	if next, ok := sub.PlanCost.NextBillingDatetime(now); ok {
		sub.DateBillingNext = &next
	} else {
		sub.DateBillingNext = nil
	}
	sub.RenewalStatus = billing.RenewalRunning
	sub.RetryID, sub.Retry = nil, nil
	sub.DateBillingAttempt = nil

	amount := decimal.NullDecimal{}
	if sub.PlanCost.Cost.Valid {
		amount = sub.PlanCost.Cost
	}
	txn := &billing.SubscriptionTransaction{
		ID:              uuid.New(),
		UserID:          sub.UserID,
		PlanCostID:      sub.PlanCostID,
		DateTransaction: now,
		Amount:          amount,
		TransactionType: billing.TransactionPayment,
	}
	if err := p.store.RecordRenewal(ctx, sub, txn); err != nil {
		return fmt.Errorf("failed to record renewal: %w", err)
	}
	return nil
}

// scheduleRetry attaches retry to sub. Its offset runs from this declined attempt.
func (r *run) scheduleRetry(ctx context.Context, sub *billing.UserSubscription, retry *billing.PaymentRetry, now time.Time) error {
	attempted := now
	sub.RenewalStatus = billing.RenewalRetrying
	sub.RetryID, sub.Retry = &retry.ID, retry
	sub.DateBillingAttempt = &attempted
	if err := r.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	r.count(func(s *Summary) { s.Retrying++ })
	r.notify(ctx, webhooks.EventPaymentRetrying, sub)
	return nil
}

// fail ends a subscription whose retries are exhausted
func (r *run) fail(ctx context.Context, sub *billing.UserSubscription) error {
	sub.RenewalStatus = billing.RenewalFailed
	sub.Active = false
	sub.RetryID, sub.Retry = nil, nil
	if err := r.store.UpdateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to end subscription: %w", err)
	}
	if err := r.revokeAccess(ctx, sub); err != nil {
		return err
	}
	r.count(func(s *Summary) { s.Failed++ })
	r.notify(ctx, webhooks.EventPaymentFailed, sub)
	return nil
}

func (p *Processor) notify(ctx context.Context, event webhooks.EventType, sub *billing.UserSubscription) {
	if p.notifier != nil {
		p.notifier.Notify(ctx, event, sub)
	}
}

func (p *Processor) grantAccess(ctx context.Context, sub *billing.UserSubscription) error {
	userID, groupID, ok := membership(sub)
	if !ok {
		return nil
	}
	if err := p.store.AddUserToGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to add user %d to group %d: %w", userID, groupID, err)
	}
	return nil
}

func (p *Processor) revokeAccess(ctx context.Context, sub *billing.UserSubscription) error {
	userID, groupID, ok := membership(sub)
	if !ok {
		return nil
	}
	if err := p.store.RemoveUserFromGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to remove user %d from group %d: %w", userID, groupID, err)
	}
	return nil
}

// membership returns the user and the group their plan grants
func membership(sub *billing.UserSubscription) (int64, int64, bool) {
	if sub.UserID == nil || sub.PlanCost == nil || sub.PlanCost.Plan == nil || sub.PlanCost.Plan.GroupID == nil {
		return 0, 0, false
	}
	return *sub.UserID, *sub.PlanCost.Plan.GroupID, true
}

func amountOf(cost *billing.PlanCost) decimal.Decimal {
	if !cost.Cost.Valid {
		return decimal.Zero
	}
	return cost.Cost.Decimal
}
