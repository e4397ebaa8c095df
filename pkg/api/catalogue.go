package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/httputil"
	"github.com/platinummonkey/subscriptions/pkg/middleware"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// CatalogueStore is the read side of the store the public catalogue uses
type CatalogueStore interface {
	GetPlanListBySlug(ctx context.Context, slug string) (*billing.PlanList, error)
	ListPlanListDetails(ctx context.Context, planListID int64, activeOnly bool) ([]billing.PlanListDetail, error)
	GetPlanCost(ctx context.Context, id uuid.UUID) (*billing.PlanCost, error)
	ListSubscriptions(ctx context.Context, opts storage.ListOptions) ([]billing.UserSubscription, int64, error)
}

// PlanListResponse is a plan list as shown to visitors
type PlanListResponse struct {
	Title    string      `json:"title"`
	Slug     string      `json:"slug"`
	Subtitle string      `json:"subtitle"`
	Header   string      `json:"header"`
	Footer   string      `json:"footer"`
	Plans    []PlanEntry `json:"plans"`
}

// PlanEntry is one priced plan on a plan list
type PlanEntry struct {
	PlanCostID          uuid.UUID `json:"plan_cost_id"`
	PlanName            string    `json:"plan_name"`
	PlanDescription     string    `json:"plan_description"`
	HTMLContent         string    `json:"html_content"`
	SubscribeButtonText string    `json:"subscribe_button_text"`
	Order               uint32    `json:"order"`
	BillingFrequency    string    `json:"billing_frequency"`
	Cost                string    `json:"cost"`
	FormattedCost       string    `json:"formatted_cost"`
	Tags                []string  `json:"tags"`
}

// SubscriptionResponse is one of a user's subscriptions
type SubscriptionResponse struct {
	ID               uuid.UUID  `json:"id"`
	PlanCostID       *uuid.UUID `json:"plan_cost_id,omitempty"`
	PlanName         string     `json:"plan_name"`
	BillingFrequency string     `json:"billing_frequency"`
	FormattedCost    string     `json:"formatted_cost"`
	DateBillingStart *time.Time `json:"date_billing_start,omitempty"`
	DateBillingEnd   *time.Time `json:"date_billing_end,omitempty"`
	DateBillingLast  *time.Time `json:"date_billing_last,omitempty"`
	DateBillingNext  *time.Time `json:"date_billing_next,omitempty"`
	Active           bool       `json:"active"`
	Cancelled        bool       `json:"cancelled"`
	RenewalStatus    string     `json:"renewal_status"`
}

// CatalogueHandlers serves plan lists and user subscriptions
type CatalogueHandlers struct {
	store CatalogueStore
}

// NewCatalogueHandlers creates catalogue handlers
func NewCatalogueHandlers(store CatalogueStore) *CatalogueHandlers {
	return &CatalogueHandlers{store: store}
}

// RegisterRoutes registers the public catalogue routes
func (h *CatalogueHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plan-lists/{slug}", h.getPlanList).Methods(http.MethodGet)
}

// RegisterUserRoutes registers the per-user routes on a router mounted at
// /users. The router must authenticate callers first.
func (h *CatalogueHandlers) RegisterUserRoutes(router *mux.Router) {
	router.HandleFunc("/{user_id}/subscriptions", h.listUserSubscriptions).Methods(http.MethodGet)
}

func (h *CatalogueHandlers) getPlanList(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	list, err := h.store.GetPlanListBySlug(r.Context(), slug)
	if err != nil {
		h.writeError(w, r, err, "get plan list")
		return
	}
	if !list.Active {
		httputil.WriteNotFoundError(w, "plan list not found")
		return
	}

	details, err := h.store.ListPlanListDetails(r.Context(), list.ID, true)
	if err != nil {
		h.writeError(w, r, err, "list plan list details")
		return
	}

	resp := PlanListResponse{
		Title:    list.Title,
		Subtitle: list.Subtitle,
		Header:   list.Header,
		Footer:   list.Footer,
		Plans:    make([]PlanEntry, 0, len(details)),
	}
	if list.Slug != nil {
		resp.Slug = *list.Slug
	}
	for _, d := range details {
		if d.PlanCost == nil || !d.PlanCost.Active {
			continue
		}
		resp.Plans = append(resp.Plans, planEntry(d))
	}

	httputil.WriteSuccess(w, resp)
}

func planEntry(d billing.PlanListDetail) PlanEntry {
	cost := d.PlanCost
	entry := PlanEntry{
		PlanCostID:          cost.ID,
		HTMLContent:         d.HTMLContent,
		SubscribeButtonText: d.SubscribeButtonText,
		Order:               d.Order,
		BillingFrequency:    cost.DisplayBillingFrequencyText(),
		FormattedCost:       cost.FormattedCost(),
		Tags:                []string{},
	}
	if cost.Cost.Valid {
		entry.Cost = cost.Cost.Decimal.StringFixed(2)
	}
	if plan := cost.Plan; plan != nil {
		entry.PlanName = plan.PlanName
		entry.PlanDescription = plan.PlanDescription
		for _, tag := range plan.Tags {
			entry.Tags = append(entry.Tags, tag.Tag)
		}
	}
	return entry
}

// listUserSubscriptions is open to the user themselves and to staff who
// manage subscriptions
func (h *CatalogueHandlers) listUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParsePathInt64(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user_id")
		return
	}

	caller := middleware.StaffFromContext(r.Context())
	if caller == nil || (caller.UserID != userID && !caller.HasPermission(billing.PermissionSubscriptions)) {
		httputil.WriteForbidden(w, "not allowed to view these subscriptions")
		return
	}

	activeOnly, err := httputil.ParseQueryBool(r, "active", false)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid active parameter")
		return
	}

	opts := storage.ListOptions{Filters: map[string]string{"user": strconv.FormatInt(userID, 10)}}
	if activeOnly {
		opts.Filters["active"] = "true"
	}
	subs, _, err := h.store.ListSubscriptions(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err, "list subscriptions")
		return
	}

	costs := make(map[uuid.UUID]*billing.PlanCost)
	resp := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		item := SubscriptionResponse{
			ID:               sub.ID,
			PlanCostID:       sub.PlanCostID,
			DateBillingStart: sub.DateBillingStart,
			DateBillingEnd:   sub.DateBillingEnd,
			DateBillingLast:  sub.DateBillingLast,
			DateBillingNext:  sub.DateBillingNext,
			Active:           sub.Active,
			Cancelled:        sub.Cancelled,
			RenewalStatus:    sub.RenewalStatus.Label(),
		}
		if sub.PlanCostID != nil {
			cost, ok := costs[*sub.PlanCostID]
			if !ok {
				if cost, err = h.store.GetPlanCost(r.Context(), *sub.PlanCostID); err != nil {
					h.writeError(w, r, err, "get plan cost")
					return
				}
				costs[*sub.PlanCostID] = cost
			}
			item.BillingFrequency = cost.DisplayBillingFrequencyText()
			item.FormattedCost = cost.FormattedCost()
			if cost.Plan != nil {
				item.PlanName = cost.Plan.PlanName
			}
		}
		resp = append(resp, item)
	}

	httputil.WriteSuccess(w, resp)
}

func (h *CatalogueHandlers) writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	if httputil.StatusForError(err) >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Errorf("Failed to %s", action)
	}
	httputil.WriteStoreError(w, err)
}
