package webhooks

import (
	"context"
	"math"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// RetryConfig bounds redelivery. Attempt n waits
// InitialDelay * BackoffMultiplier^(n-1), capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig gives up after five attempts spread over about 15s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	// a multiplier of 1 or less would never back off
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// RetryPolicy decides whether and when a failed delivery is tried again
type RetryPolicy struct {
	config RetryConfig
	now    func() time.Time
}

// NewRetryPolicy fills zero or unusable fields from DefaultRetryConfig
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	return &RetryPolicy{config: config.withDefaults(), now: time.Now}
}

// ShouldRetry is true for a failed attempt while attempts remain
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	return err != nil && attempts < p.config.MaxAttempts
}

// NextRetryDelay is the wait after the given number of attempts
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	exp := float64(max(attempts-1, 0))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, exp)
	if delay >= float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return p.now().Add(p.NextRetryDelay(attempts))
}

// RetryWorker resends deliveries whose backoff has elapsed
type RetryWorker struct {
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewRetryWorker(dispatcher *Dispatcher) *RetryWorker {
	return &RetryWorker{dispatcher: dispatcher, now: time.Now}
}

// Run polls for due retries every interval and returns nil once ctx is done
func (w *RetryWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.processRetries(ctx)
		}
	}
}

// processRetries makes one more attempt for each due delivery. Deliveries to
// an endpoint that is gone or inactive fail without a request.
func (w *RetryWorker) processRetries(ctx context.Context) {
	defer observability.RecoverPanic(w.dispatcher.logger, "webhook retry worker")

	for _, log := range w.dispatcher.deliveries.GetPendingRetries(w.now()) {
		endpoint, ok := w.dispatcher.Endpoint(log.EndpointID)
		if !ok || !endpoint.Active {
			now := w.now()
			log.Status = DeliveryStatusFailed
			log.ErrorMessage = "webhook endpoint is no longer active"
			log.NextRetryAt = nil
			log.CompletedAt = &now
			w.dispatcher.deliveries.Update(log)
			continue
		}

		w.dispatcher.deliver(ctx, &endpoint, log)
	}
}
