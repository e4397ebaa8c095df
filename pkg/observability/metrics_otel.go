package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/platinummonkey/subscriptions"

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	cacheLookups   metric.Int64Counter
	renewalRuns    metric.Int64Counter
	renewalLatency metric.Float64Histogram
	renewalCharges metric.Int64Counter
	currencySyncs  metric.Int64Counter
	currencyRows   metric.Int64Counter
}

// NewOTelMetrics creates instruments on meter, or on the global meter provider when nil
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m := &OTelMetrics{}
	var err error

	m.cacheLookups, err = meter.Int64Counter(
		"subscriptions.cache.lookups",
		metric.WithDescription("Catalogue cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.renewalRuns, err = meter.Int64Counter(
		"subscriptions.renewal.runs",
		metric.WithDescription("Renewal passes"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal runs counter: %w", err)
	}

	m.renewalLatency, err = meter.Float64Histogram(
		"subscriptions.renewal.duration",
		metric.WithDescription("Renewal pass duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal duration histogram: %w", err)
	}

	m.renewalCharges, err = meter.Int64Counter(
		"subscriptions.renewal.charges",
		metric.WithDescription("Charge attempts made by the renewal processor"),
		metric.WithUnit("{charge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal charges counter: %w", err)
	}

	m.currencySyncs, err = meter.Int64Counter(
		"subscriptions.currency.syncs",
		metric.WithDescription("Currency definition syncs"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create currency syncs counter: %w", err)
	}

	m.currencyRows, err = meter.Int64Counter(
		"subscriptions.currency.rows_synced",
		metric.WithDescription("Currency rows inserted or updated by syncs"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create currency rows counter: %w", err)
	}

	return m, nil
}

// RecordCacheLookup records a hit or miss on one cache layer
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, layer, kind string, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("layer", layer),
		attribute.String("kind", kind),
		attribute.Bool("hit", hit),
	))
}

// RecordRenewalRun records a renewal pass
func (m *OTelMetrics) RecordRenewalRun(ctx context.Context, result string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.renewalRuns.Add(ctx, 1, attrs)
	if result != RunSkipped {
		m.renewalLatency.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordRenewalCharge records one charge attempt
func (m *OTelMetrics) RecordRenewalCharge(ctx context.Context, step, result string) {
	m.renewalCharges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("result", result),
	))
}

// RecordCurrencySync records a currency sync
func (m *OTelMetrics) RecordCurrencySync(ctx context.Context, changed int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.currencySyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if err == nil {
		m.currencyRows.Add(ctx, int64(changed))
	}
}
