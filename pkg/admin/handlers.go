package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/subscriptions/pkg/audit"
	"github.com/platinummonkey/subscriptions/pkg/httputil"
	"github.com/platinummonkey/subscriptions/pkg/middleware"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// reserved list query parameters; everything else must be a list filter
var listParams = map[string]bool{"q": true, "o": true, "page": true, "page_size": true}

// Handlers serves the admin site as JSON
type Handlers struct {
	site  *Site
	audit audit.Logger
}

// NewHandlers creates admin site handlers
func NewHandlers(site *Site) *Handlers {
	return &Handlers{site: site, audit: audit.NoOp()}
}

// WithAuditLog records every change made through the site to l. History
// is served when l also implements audit.Reader.
func (h *Handlers) WithAuditLog(l audit.Logger) *Handlers {
	if l != nil {
		h.audit = l
	}
	return h
}

// RegisterRoutes registers the admin routes on router. Callers mount router
// under /admin behind staff authentication.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.index).Methods(http.MethodGet)
	router.HandleFunc("/{model}/", h.list).Methods(http.MethodGet)
	router.HandleFunc("/{model}/", h.create).Methods(http.MethodPost)
	router.HandleFunc("/{model}/{id}", h.detail).Methods(http.MethodGet)
	router.HandleFunc("/{model}/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/{model}/{id}", h.remove).Methods(http.MethodDelete)
	router.HandleFunc("/{model}/{id}/history", h.history).Methods(http.MethodGet)
}

// ListResponse is one page of a model's change list
type ListResponse struct {
	Model    string   `json:"model"`
	Count    int64    `json:"count"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	NumPages int64    `json:"num_pages"`
	Columns  []string `json:"columns"`
	Results  []Row    `json:"results"`
}

// InlineRows are the child rows of one inline on a detail page
type InlineRows struct {
	Inline
	Rows       []Row `json:"rows"`
	ExtraForms []Row `json:"extra_forms"`
}

// DetailResponse is a record's change form
type DetailResponse struct {
	Model   string       `json:"model"`
	Fields  []string     `json:"fields"`
	Object  Row          `json:"object"`
	Inlines []InlineRows `json:"inlines,omitempty"`
}

// index handles GET /admin/
func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{"models": h.site.Registered()})
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*ModelAdmin, bool) {
	name := mux.Vars(r)["model"]
	ma, ok := h.site.Lookup(name)
	if !ok {
		httputil.WriteNotFoundError(w, fmt.Sprintf("unknown model %q", name))
	}
	return ma, ok
}

// list handles GET /admin/{model}/
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}

	opts, page, pageSize, err := listOptions(ma, r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	rows, total, err := ma.model.List(r.Context(), opts, ma.ListDisplay)
	if err != nil {
		h.writeError(w, r, err, "list "+ma.Name)
		return
	}

	httputil.WriteSuccess(w, ListResponse{
		Model:    ma.Name,
		Count:    total,
		Page:     page,
		PageSize: pageSize,
		NumPages: (total + int64(pageSize) - 1) / int64(pageSize),
		Columns:  ma.ListDisplay,
		Results:  rows,
	})
}

func listOptions(ma *ModelAdmin, r *http.Request) (storage.ListOptions, int, int, error) {
	query := r.URL.Query()

	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil || page < 1 {
		return storage.ListOptions{}, 0, 0, fmt.Errorf("invalid page %q", query.Get("page"))
	}
	pageSize, err := httputil.ParseQueryInt(r, "page_size", defaultPageSize)
	if err != nil || pageSize < 1 {
		return storage.ListOptions{}, 0, 0, fmt.Errorf("invalid page_size %q", query.Get("page_size"))
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	opts := storage.ListOptions{
		Ordering: ma.Ordering,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	if len(ma.SearchFields) > 0 {
		opts.Search = strings.TrimSpace(query.Get("q"))
	}
	if o := query.Get("o"); o != "" {
		opts.Ordering = strings.Split(o, ",")
	}

	for key := range query {
		if listParams[key] {
			continue
		}
		if !contains(ma.ListFilter, key) {
			return storage.ListOptions{}, 0, 0, fmt.Errorf("unknown filter %q", key)
		}
		if opts.Filters == nil {
			opts.Filters = make(map[string]string)
		}
		opts.Filters[key] = query.Get(key)
	}

	return opts, page, pageSize, nil
}

// detail handles GET /admin/{model}/{id}
func (h *Handlers) detail(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	resp, err := h.changeForm(r, ma, id)
	if err != nil {
		h.writeError(w, r, err, "get "+ma.Name)
		return
	}
	httputil.WriteSuccess(w, resp)
}

func (h *Handlers) changeForm(r *http.Request, ma *ModelAdmin, id string) (*DetailResponse, error) {
	obj, err := ma.model.Get(r.Context(), id, ma.Fields)
	if err != nil {
		return nil, err
	}

	resp := &DetailResponse{Model: ma.Name, Fields: ma.Fields, Object: obj}
	for _, in := range ma.Inlines {
		rows, err := in.rows.Rows(r.Context(), id, in.Fields)
		if err != nil {
			return nil, err
		}
		extra := make([]Row, in.Extra)
		for i := range extra {
			extra[i] = in.rows.Blank(id, in.Fields)
		}
		resp.Inlines = append(resp.Inlines, InlineRows{Inline: in, Rows: rows, ExtraForms: extra})
	}
	return resp, nil
}

// create handles POST /admin/{model}/
func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}

	form, inlines, err := splitBody(ma, r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	id, err := ma.model.Create(r.Context(), form)
	if err != nil {
		h.writeError(w, r, err, "create "+ma.Name)
		return
	}
	if err := saveInlines(r, ma, id, inlines); err != nil {
		// child rows cascade with the parent, so this drops any already saved
		if derr := ma.model.Delete(context.WithoutCancel(r.Context()), id); derr != nil {
			observability.FromContext(r.Context()).WithError(derr).WithField("object_id", id).
				Errorf("Failed to remove %s after its inlines failed", ma.VerboseName)
		}
		h.writeError(w, r, err, "save inlines of "+ma.Name)
		return
	}

	h.logChange(r, audit.ActionAddition, ma, id, h.objectRepr(r, ma, id), "Added.")
	resp, err := h.changeForm(r, ma, id)
	if err != nil {
		h.writeError(w, r, err, "get "+ma.Name)
		return
	}
	httputil.WriteCreated(w, resp)
}

// update handles PUT /admin/{model}/{id}
func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	form, inlines, err := splitBody(ma, r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := ma.model.Update(r.Context(), id, form); err != nil {
		h.writeError(w, r, err, "update "+ma.Name)
		return
	}
	if err := saveInlines(r, ma, id, inlines); err != nil {
		// the parent's own fields are already saved
		h.logChange(r, audit.ActionChange, ma, id, h.objectRepr(r, ma, id), changeMessage(form, nil))
		h.writeError(w, r, err, "save inlines of "+ma.Name)
		return
	}

	h.logChange(r, audit.ActionChange, ma, id, h.objectRepr(r, ma, id), changeMessage(form, inlines))
	resp, err := h.changeForm(r, ma, id)
	if err != nil {
		h.writeError(w, r, err, "get "+ma.Name)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// remove handles DELETE /admin/{model}/{id}
func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	repr := h.objectRepr(r, ma, id)

	if err := ma.model.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err, "delete "+ma.Name)
		return
	}
	h.logChange(r, audit.ActionDeletion, ma, id, repr, "Deleted.")
	httputil.WriteNoContent(w)
}

// splitBody separates inline rows from the model's own form fields
func splitBody(ma *ModelAdmin, r *http.Request) (json.RawMessage, map[string][]json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, fmt.Errorf("request body too large")
		}
		return nil, nil, fmt.Errorf("failed to read request body: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	inlines := make(map[string][]json.RawMessage)
	for _, in := range ma.Inlines {
		raw, ok := fields[in.Name]
		if !ok {
			continue
		}
		delete(fields, in.Name)
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, nil, fmt.Errorf("%s must be a list of rows", in.Name)
		}
		inlines[in.Name] = rows
	}

	form, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode form: %w", err)
	}
	return form, inlines, nil
}

func saveInlines(r *http.Request, ma *ModelAdmin, parentID string, inlines map[string][]json.RawMessage) error {
	for _, in := range ma.Inlines {
		rows, ok := inlines[in.Name]
		if !ok {
			continue
		}
		if err := in.rows.Save(r.Context(), parentID, rows); err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
	}
	return nil
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	if httputil.StatusForError(err) == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Errorf("Admin failed to %s", action)
	}
	httputil.WriteStoreError(w, err)
}

// HistoryResponse lists the recorded changes of one object, newest first
type HistoryResponse struct {
	Model    string        `json:"model"`
	ObjectID string        `json:"object_id"`
	Entries  []audit.Entry `json:"entries"`
}

// history handles GET /admin/{model}/{id}/history
func (h *Handlers) history(w http.ResponseWriter, r *http.Request) {
	ma, ok := h.lookup(w, r)
	if !ok {
		return
	}
	reader, ok := h.audit.(audit.Reader)
	if !ok {
		httputil.WriteNotFoundError(w, "change history is not recorded")
		return
	}
	id := mux.Vars(r)["id"]

	entries, err := reader.History(r.Context(), audit.Filter{Model: ma.Name, ObjectID: id})
	if err != nil {
		h.writeError(w, r, err, "read history of "+ma.Name)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteSuccess(w, HistoryResponse{Model: ma.Name, ObjectID: id, Entries: entries})
}

// objectRepr is the object's display string, or its id when it cannot be read
func (h *Handlers) objectRepr(r *http.Request, ma *ModelAdmin, id string) string {
	row, err := ma.model.Get(r.Context(), id, []string{"__str__"})
	if err != nil {
		return id
	}
	if s, ok := row["__str__"].(string); ok && s != "" {
		return s
	}
	return id
}

// changeMessage names the fields and inlines an update touched
func changeMessage(form json.RawMessage, inlines map[string][]json.RawMessage) string {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(form, &fields)

	changed := make([]string, 0, len(fields)+len(inlines))
	for name := range fields {
		changed = append(changed, name)
	}
	for name := range inlines {
		changed = append(changed, name)
	}
	if len(changed) == 0 {
		return "No fields changed."
	}
	sort.Strings(changed)
	return "Changed " + strings.Join(changed, ", ") + "."
}

func (h *Handlers) logChange(r *http.Request, action audit.Action, ma *ModelAdmin, id, repr, message string) {
	logger := observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"model":     ma.Name,
		"object_id": id,
	})
	logger.Infof("%s %s %q", action, ma.VerboseName, repr)

	entry := audit.NewEntry(r.Context(), action, ma.Name, id, repr, message)
	if staff := middleware.StaffFromContext(r.Context()); staff != nil {
		userID := staff.UserID
		entry.UserID = &userID
		entry.Username = staff.Username
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		logger.WithError(err).Warn("Failed to record admin change")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
