package renewal

import (
	"context"

	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/shopspring/decimal"
)

// Charger takes payment for a subscription. A returned error means the
// payment did not go through and the subscription moves on to its retry
// schedule.
type Charger interface {
	Charge(ctx context.Context, sub *billing.UserSubscription, amount decimal.Decimal) error
}

// ChargerFunc adapts a function to Charger
type ChargerFunc func(ctx context.Context, sub *billing.UserSubscription, amount decimal.Decimal) error

// Charge calls f
func (f ChargerFunc) Charge(ctx context.Context, sub *billing.UserSubscription, amount decimal.Decimal) error {
	return f(ctx, sub, amount)
}

// AcceptingCharger approves every charge and logs it. It suits deployments
// that collect payment outside this service.
type AcceptingCharger struct {
	Logger *observability.Logger
}

// Charge logs the charge and approves it
func (c AcceptingCharger) Charge(_ context.Context, sub *billing.UserSubscription, amount decimal.Decimal) error {
	c.Logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID.String(),
		"user_id":         sub.UserID,
		"amount":          amount.String(),
	}).Info("Charge accepted")
	return nil
}
