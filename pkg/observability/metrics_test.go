package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func histogramSamples(t *testing.T, registry *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Add(0)
	metrics.RenewalChargesTotal.WithLabelValues("due", ChargeSucceeded).Add(0)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"subscriptions_http_requests_total",
		"subscriptions_renewal_charges_total",
		"subscriptions_renewal_run_duration_seconds",
		"subscriptions_currency_rows_synced_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected registering twice on one registry to panic")
		}
	}()
	NewMetrics(registry)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/api/v1/plan-lists/{slug}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["slug"] != "pro" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"title":"Pro"}`))
	})

	for _, slug := range []string{"pro", "pro", "missing"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plan-lists/"+slug, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	route := "/api/v1/plan-lists/{slug}"
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", route, "200")); got != 2 {
		t.Errorf("200 requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", route, "404")); got != 1 {
		t.Errorf("404 requests = %v, want 1", got)
	}
}

func TestRouteLabel_Unmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := routeLabel(req); got != "unmatched" {
		t.Errorf("routeLabel() = %q, want unmatched", got)
	}
}

func TestMetrics_Recorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	ctx := context.Background()

	var rec Recorder = Recorders{metrics}

	rec.RecordCacheLookup(ctx, "l1", "plan_list", true)
	rec.RecordCacheLookup(ctx, "redis", "plan_list", false)
	rec.RecordRenewalCharge(ctx, "due", ChargeSucceeded)
	rec.RecordRenewalCharge(ctx, "due", ChargeSucceeded)
	rec.RecordRenewalCharge(ctx, "retry", ChargeFailed)
	rec.RecordRenewalRun(ctx, RunCompleted, 2*time.Second)
	rec.RecordRenewalRun(ctx, RunSkipped, 0)
	rec.RecordCurrencySync(ctx, 3, nil)
	rec.RecordCurrencySync(ctx, 0, errors.New("bad yaml"))

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"l1 hit", metrics.CacheLookupsTotal.WithLabelValues("l1", "plan_list", "hit"), 1},
		{"redis miss", metrics.CacheLookupsTotal.WithLabelValues("redis", "plan_list", "miss"), 1},
		{"due succeeded", metrics.RenewalChargesTotal.WithLabelValues("due", ChargeSucceeded), 2},
		{"retry failed", metrics.RenewalChargesTotal.WithLabelValues("retry", ChargeFailed), 1},
		{"runs completed", metrics.RenewalRunsTotal.WithLabelValues(RunCompleted), 1},
		{"runs skipped", metrics.RenewalRunsTotal.WithLabelValues(RunSkipped), 1},
		{"syncs ok", metrics.CurrencySyncsTotal.WithLabelValues("ok"), 1},
		{"syncs error", metrics.CurrencySyncsTotal.WithLabelValues("error"), 1},
		{"rows synced", metrics.CurrencyRowsSyncedTotal, 3},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}

	// skipped runs do not observe a duration
	if got := histogramSamples(t, registry, "subscriptions_renewal_run_duration_seconds"); got != 1 {
		t.Errorf("duration samples = %d, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	RegisterRuntimeCollectors(registry, nil)
	metrics.RenewalRunsTotal.WithLabelValues(RunCompleted).Inc()

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"subscriptions_renewal_runs_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
