package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventActivated       EventType = "subscription.activated"
	EventRenewed         EventType = "subscription.renewed"
	EventPaymentRetrying EventType = "subscription.payment_retrying"
	EventPaymentFailed   EventType = "subscription.payment_failed"
	EventExpired         EventType = "subscription.expired"
)

// AllEvents lists every event type, the default subscription of an endpoint
var AllEvents = []EventType{EventActivated, EventRenewed, EventPaymentRetrying, EventPaymentFailed, EventExpired}

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// SubscriptionEvent describes sub in the event payload
func SubscriptionEvent(eventType EventType, sub *billing.UserSubscription) *Event {
	data := map[string]interface{}{
		"subscription_id": sub.ID.String(),
		"active":          sub.Active,
		"cancelled":       sub.Cancelled,
		"renewal_status":  string(sub.RenewalStatus),
	}
	if sub.UserID != nil {
		data["user_id"] = *sub.UserID
	}
	if sub.PlanCostID != nil {
		data["plan_cost_id"] = sub.PlanCostID.String()
	}
	if sub.PlanCost != nil {
		if sub.PlanCost.Plan != nil {
			data["plan_name"] = sub.PlanCost.Plan.PlanName
		}
		if sub.PlanCost.Cost.Valid {
			data["amount"] = sub.PlanCost.Cost.Decimal.StringFixed(2)
		}
		data["billing_frequency"] = sub.PlanCost.DisplayBillingFrequencyText()
	}
	if sub.DateBillingNext != nil {
		data["date_billing_next"] = sub.DateBillingNext.UTC()
	}
	if sub.DateBillingEnd != nil {
		data["date_billing_end"] = sub.DateBillingEnd.UTC()
	}
	if sub.Retry != nil {
		data["retry_iteration"] = sub.Retry.Iteration
	}
	return &Event{Type: eventType, Data: data}
}

// Endpoint is a URL notified of billing events
type Endpoint struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Events []EventType `json:"events"`
	Secret string      `json:"-"`
	Active bool        `json:"active"`
}

func (e *Endpoint) wants(t EventType) bool {
	for _, et := range e.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Options configures a Dispatcher
type Options struct {
	Logger  *observability.Logger
	Timeout time.Duration
	Retry   RetryConfig
	MaxLogs int
}

// Dispatcher delivers events to registered endpoints
type Dispatcher struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint

	client     *http.Client
	deliveries *DeliveryLogStore
	policy     *RetryPolicy
	logger     *observability.Logger
	inflight   sync.WaitGroup
}

// NewDispatcher creates a dispatcher with no endpoints
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Dispatcher{
		endpoints: make(map[string]*Endpoint),
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		deliveries: NewDeliveryLogStore(opts.MaxLogs),
		policy:     NewRetryPolicy(opts.Retry),
		logger:     opts.Logger,
	}
}

// Register adds an endpoint. Endpoints without events receive all of them.
func (d *Dispatcher) Register(endpoint *Endpoint) error {
	if endpoint.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if len(endpoint.Events) == 0 {
		endpoint.Events = append([]EventType(nil), AllEvents...)
	}
	endpoint.ID = uuid.NewString()
	endpoint.Active = true

	d.mu.Lock()
	d.endpoints[endpoint.ID] = endpoint
	d.mu.Unlock()
	return nil
}

// Endpoint returns a copy of a registered endpoint
func (d *Dispatcher) Endpoint(id string) (Endpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.endpoints[id]
	if !ok {
		return Endpoint{}, false
	}
	return *e, true
}

// Deactivate stops deliveries to an endpoint
func (d *Dispatcher) Deactivate(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.endpoints[id]
	if !ok {
		return fmt.Errorf("webhook %s not found", id)
	}
	e.Active = false
	return nil
}

// Deliveries returns the most recent delivery attempts for an endpoint
func (d *Dispatcher) Deliveries(endpointID string, limit int) []DeliveryLog {
	return d.deliveries.GetByEndpoint(endpointID, limit)
}

// Stats summarises deliveries to an endpoint
func (d *Dispatcher) Stats(endpointID string) DeliveryStats {
	return d.deliveries.GetStats(endpointID)
}

// Notify dispatches the event describing sub
func (d *Dispatcher) Notify(ctx context.Context, eventType EventType, sub *billing.UserSubscription) {
	if err := d.Dispatch(ctx, SubscriptionEvent(eventType, sub)); err != nil {
		observability.FromContext(ctx).WithError(err).Warnf("Failed to dispatch %s", eventType)
	}
}

// Dispatch sends event to every active endpoint subscribed to its type.
// Deliveries run in the background; Wait blocks until they finish.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, endpoint := range d.endpoints {
		if !endpoint.Active || !endpoint.wants(event.Type) {
			continue
		}

		log := DeliveryLog{
			ID:         uuid.NewString(),
			EndpointID: endpoint.ID,
			EventID:    event.ID,
			EventType:  event.Type,
			URL:        endpoint.URL,
			Status:     DeliveryStatusPending,
			CreatedAt:  event.Timestamp,
			Payload:    payload,
		}
		d.deliveries.Add(log)

		d.inflight.Add(1)
		go func(endpoint Endpoint) {
			defer d.inflight.Done()
			defer observability.RecoverPanic(d.logger, "webhook delivery")
			// the run that raised the event may finish before delivery
			d.deliver(context.WithoutCancel(ctx), &endpoint, log)
		}(*endpoint)
	}
	return nil
}

// Wait blocks until every in-flight delivery has finished
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// deliver makes one attempt and records its outcome
func (d *Dispatcher) deliver(ctx context.Context, endpoint *Endpoint, log DeliveryLog) {
	log.Attempts++
	start := time.Now()
	statusCode, err := d.send(ctx, endpoint, log)
	log.Duration = time.Since(start)
	log.StatusCode = statusCode

	logger := d.logger.WithFields(map[string]interface{}{
		"event_id":   log.EventID,
		"event_type": string(log.EventType),
		"url":        log.URL,
		"attempt":    log.Attempts,
	})

	now := time.Now()
	switch {
	case err == nil:
		log.Status = DeliveryStatusSuccess
		log.ErrorMessage = ""
		log.NextRetryAt = nil
		log.CompletedAt = &now
		logger.Debug("Webhook delivered")
	case d.policy.ShouldRetry(log.Attempts, err):
		next := d.policy.NextRetryTime(log.Attempts)
		log.Status = DeliveryStatusRetrying
		log.ErrorMessage = err.Error()
		log.NextRetryAt = &next
		logger.WithError(err).Warn("Webhook delivery failed, will retry")
	default:
		log.Status = DeliveryStatusFailed
		log.ErrorMessage = err.Error()
		log.NextRetryAt = nil
		log.CompletedAt = &now
		logger.WithError(err).Error("Webhook delivery failed")
	}

	d.deliveries.Update(log)
}

func (d *Dispatcher) send(ctx context.Context, endpoint *Endpoint, log DeliveryLog) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(log.Payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Subscriptions-Event", string(log.EventType))
	req.Header.Set("X-Subscriptions-Event-ID", log.EventID)
	req.Header.Set("X-Subscriptions-Delivery", log.ID)
	if endpoint.Secret != "" {
		req.Header.Set("X-Subscriptions-Signature", generateSignature(log.Payload, endpoint.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// VerifySignature verifies the webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
