package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Renewal run results
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunFailed    = "failed"
)

// Charge results
const (
	ChargeSucceeded = "succeeded"
	ChargeFailed    = "failed"
	ChargeErrored   = "error"
)

// Recorder receives the measurements the service produces outside HTTP handling
type Recorder interface {
	RecordCacheLookup(ctx context.Context, layer, kind string, hit bool)
	RecordRenewalRun(ctx context.Context, result string, duration time.Duration)
	RecordRenewalCharge(ctx context.Context, step, result string)
	RecordCurrencySync(ctx context.Context, changed int, err error)
}

// Recorders fans measurements out to several recorders
type Recorders []Recorder

func (rs Recorders) RecordCacheLookup(ctx context.Context, layer, kind string, hit bool) {
	for _, r := range rs {
		r.RecordCacheLookup(ctx, layer, kind, hit)
	}
}

func (rs Recorders) RecordRenewalRun(ctx context.Context, result string, duration time.Duration) {
	for _, r := range rs {
		r.RecordRenewalRun(ctx, result, duration)
	}
}

func (rs Recorders) RecordRenewalCharge(ctx context.Context, step, result string) {
	for _, r := range rs {
		r.RecordRenewalCharge(ctx, step, result)
	}
}

func (rs Recorders) RecordCurrencySync(ctx context.Context, changed int, err error) {
	for _, r := range rs {
		r.RecordCurrencySync(ctx, changed, err)
	}
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Renewal metrics
	RenewalRunsTotal    *prometheus.CounterVec
	RenewalRunDuration  prometheus.Histogram
	RenewalChargesTotal *prometheus.CounterVec

	// Currency metrics
	CurrencySyncsTotal      *prometheus.CounterVec
	CurrencyRowsSyncedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subscriptions_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subscriptions_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_cache_lookups_total",
				Help: "Catalogue cache lookups by layer and result",
			},
			[]string{"layer", "kind", "result"},
		),

		RenewalRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_renewal_runs_total",
				Help: "Renewal passes by result",
			},
			[]string{"result"},
		),
		RenewalRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subscriptions_renewal_run_duration_seconds",
				Help:    "Duration of a renewal pass in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300},
			},
		),
		RenewalChargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_renewal_charges_total",
				Help: "Charge attempts by renewal step and result",
			},
			[]string{"step", "result"},
		),

		CurrencySyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscriptions_currency_syncs_total",
				Help: "Currency definition syncs by result",
			},
			[]string{"result"},
		),
		CurrencyRowsSyncedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subscriptions_currency_rows_synced_total",
				Help: "Currency rows inserted or updated by syncs",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.CacheLookupsTotal,
		m.RenewalRunsTotal,
		m.RenewalRunDuration,
		m.RenewalChargesTotal,
		m.CurrencySyncsTotal,
		m.CurrencyRowsSyncedTotal,
	)

	return m
}

// RecordCacheLookup counts a hit or miss on one cache layer
func (m *Metrics) RecordCacheLookup(_ context.Context, layer, kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(layer, kind, result).Inc()
}

// RecordRenewalRun counts a renewal pass and, unless skipped, its duration
func (m *Metrics) RecordRenewalRun(_ context.Context, result string, duration time.Duration) {
	m.RenewalRunsTotal.WithLabelValues(result).Inc()
	if result != RunSkipped {
		m.RenewalRunDuration.Observe(duration.Seconds())
	}
}

// RecordRenewalCharge counts one charge attempt
func (m *Metrics) RecordRenewalCharge(_ context.Context, step, result string) {
	m.RenewalChargesTotal.WithLabelValues(step, result).Inc()
}

// RecordCurrencySync counts a currency sync and the rows it changed
func (m *Metrics) RecordCurrencySync(_ context.Context, changed int, err error) {
	if err != nil {
		m.CurrencySyncsTotal.WithLabelValues("error").Inc()
		return
	}
	m.CurrencySyncsTotal.WithLabelValues("ok").Inc()
	m.CurrencyRowsSyncedTotal.Add(float64(changed))
}

// RegisterRuntimeCollectors adds Go runtime, process and connection pool collectors
func RegisterRuntimeCollectors(registry *prometheus.Registry, db *sql.DB) {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		registry.MustRegister(collectors.NewDBStatsCollector(db, "subscriptions"))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the matched route template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Install it with Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
