package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/middleware"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("catalogue-test-secret")

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, auth *middleware.StaffAuth, staff middleware.Staff) string {
	t.Helper()
	tok, err := auth.IssueToken(staff, time.Hour)
	require.NoError(t, err)
	return tok
}

func monthlyCost(t *testing.T, amount string) *billing.PlanCost {
	t.Helper()
	usd, ok := currency.DefaultDefinitions().Lookup("en_US")
	require.True(t, ok)
	plan := &billing.SubscriptionPlan{
		ID:              uuid.New(),
		PlanName:        "Pro",
		PlanDescription: "For growing teams",
		Tags:            []billing.PlanTag{{ID: 1, Tag: "popular"}, {ID: 2, Tag: "teams"}},
	}
	cost := billing.NewPlanCost(plan.ID)
	cost.Plan = plan
	cost.Currency = &usd
	cost.Cost = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	return &cost
}

func catalogueFixture(t *testing.T) (*fakeStore, *billing.PlanCost) {
	t.Helper()
	store := newFakeStore()
	slug := "pricing"
	store.lists[slug] = &billing.PlanList{ID: 1, Title: "Pricing", Slug: &slug, Header: "Pick a plan", Active: true}

	monthly := monthlyCost(t, "29.99")
	retired := monthlyCost(t, "19.99")
	retired.Active = false
	hidden := monthlyCost(t, "9.99")
	store.costs[monthly.ID] = monthly

	first := billing.NewPlanListDetail(1, monthly.ID)
	first.PlanCost = monthly
	first.HTMLContent = "<p>Everything</p>"
	second := billing.NewPlanListDetail(1, retired.ID)
	second.PlanCost = retired
	second.Order = 2
	third := billing.NewPlanListDetail(1, hidden.ID)
	third.PlanCost = hidden
	third.Active = false
	store.details[1] = []billing.PlanListDetail{first, second, third}
	return store, monthly
}

func TestGetPlanList(t *testing.T) {
	store, monthly := catalogueFixture(t)
	srv := NewServer(Options{Store: store, Logger: testLogger()})

	w := get(t, srv, "/api/v1/plan-lists/pricing", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[PlanListResponse](t, w)
	assert.Equal(t, "Pricing", resp.Title)
	assert.Equal(t, "pricing", resp.Slug)
	assert.Equal(t, "Pick a plan", resp.Header)
	require.Len(t, resp.Plans, 1)

	entry := resp.Plans[0]
	assert.Equal(t, monthly.ID, entry.PlanCostID)
	assert.Equal(t, "Pro", entry.PlanName)
	assert.Equal(t, "For growing teams", entry.PlanDescription)
	assert.Equal(t, "<p>Everything</p>", entry.HTMLContent)
	assert.Equal(t, "Subscribe", entry.SubscribeButtonText)
	assert.Equal(t, uint32(1), entry.Order)
	assert.Equal(t, "per month", entry.BillingFrequency)
	assert.Equal(t, "29.99", entry.Cost)
	assert.Equal(t, "$29.99", entry.FormattedCost)
	assert.Equal(t, []string{"popular", "teams"}, entry.Tags)
}

func TestGetPlanList_NotShown(t *testing.T) {
	store, _ := catalogueFixture(t)
	store.lists["pricing"].Active = false
	srv := NewServer(Options{Store: store, Logger: testLogger()})

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/plan-lists/pricing", "").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/plan-lists/missing", "").Code)
}

func TestGetPlanList_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection reset by peer")
	srv := NewServer(Options{Store: store, Logger: testLogger()})

	w := get(t, srv, "/api/v1/plan-lists/pricing", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestListUserSubscriptions(t *testing.T) {
	auth := middleware.NewStaffAuth(testSecret, "")
	store := newFakeStore()
	cost := monthlyCost(t, "29.99")
	store.costs[cost.ID] = cost

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := billing.NewUserSubscription(42, cost.ID, start)
	lapsed := billing.NewUserSubscription(42, cost.ID, start.AddDate(-1, 0, 0))
	lapsed.Active = false
	lapsed.RenewalStatus = billing.RenewalFailed
	other := billing.NewUserSubscription(7, cost.ID, start)
	store.subs = []billing.UserSubscription{current, lapsed, other}

	srv := NewServer(Options{Store: store, Logger: testLogger(), StaffAuth: auth})

	self := token(t, auth, middleware.Staff{UserID: 42})
	stranger := token(t, auth, middleware.Staff{UserID: 8})
	manager := token(t, auth, middleware.Staff{UserID: 1, IsStaff: true, Permissions: []string{billing.PermissionSubscriptions}})
	root := token(t, auth, middleware.Staff{UserID: 2, IsSuperuser: true})

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantCount  int
	}{
		{"anonymous", "/api/v1/users/42/subscriptions", "", http.StatusUnauthorized, 0},
		{"another user", "/api/v1/users/42/subscriptions", stranger, http.StatusForbidden, 0},
		{"self", "/api/v1/users/42/subscriptions", self, http.StatusOK, 2},
		{"self active only", "/api/v1/users/42/subscriptions?active=true", self, http.StatusOK, 1},
		{"staff with permission", "/api/v1/users/42/subscriptions", manager, http.StatusOK, 2},
		{"superuser", "/api/v1/users/7/subscriptions", root, http.StatusOK, 1},
		{"bad user id", "/api/v1/users/abc/subscriptions", self, http.StatusBadRequest, 0},
		{"bad active flag", "/api/v1/users/42/subscriptions?active=maybe", self, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.path, tt.token)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Len(t, decode[[]SubscriptionResponse](t, w), tt.wantCount)
		})
	}

	t.Run("response fields", func(t *testing.T) {
		store.costCalls = 0
		w := get(t, srv, "/api/v1/users/42/subscriptions", self)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[[]SubscriptionResponse](t, w)
		require.Len(t, resp, 2)
		assert.Equal(t, current.ID, resp[0].ID)
		assert.Equal(t, "Pro", resp[0].PlanName)
		assert.Equal(t, "per month", resp[0].BillingFrequency)
		assert.Equal(t, "$29.99", resp[0].FormattedCost)
		assert.Equal(t, "Running", resp[0].RenewalStatus)
		assert.True(t, resp[0].Active)
		assert.Equal(t, "Failed", resp[1].RenewalStatus)
		assert.Equal(t, 1, store.costCalls)
		assert.Equal(t, map[string]string{"user": "42"}, store.lastOpts.Filters)
	})
}

func TestListUserSubscriptions_MissingPlanCost(t *testing.T) {
	auth := middleware.NewStaffAuth(testSecret, "")
	store := newFakeStore()
	store.subs = []billing.UserSubscription{billing.NewUserSubscription(42, uuid.New(), time.Now())}
	srv := NewServer(Options{Store: store, Logger: testLogger(), StaffAuth: auth})

	w := get(t, srv, "/api/v1/users/42/subscriptions", token(t, auth, middleware.Staff{UserID: 42}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
