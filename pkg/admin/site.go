package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// ErrAlreadyRegistered is returned when a model name is registered twice
var ErrAlreadyRegistered = errors.New("model already registered")

// InlineStyle selects how inline rows are laid out
type InlineStyle string

const (
	Tabular InlineStyle = "tabular"
	Stacked InlineStyle = "stacked"
)

// Row is one record keyed by admin field name. Every row carries "id".
type Row map[string]interface{}

// Model reads and writes the records behind a ModelAdmin
type Model interface {
	List(ctx context.Context, opts storage.ListOptions, fields []string) ([]Row, int64, error)
	Get(ctx context.Context, id string, fields []string) (Row, error)
	// Create decodes form onto a blank record, saves it and returns its id
	Create(ctx context.Context, form json.RawMessage) (string, error)
	// Update decodes form onto the stored record; omitted fields keep their values
	Update(ctx context.Context, id string, form json.RawMessage) error
	Delete(ctx context.Context, id string) error
}

// InlineModel reads and writes child rows edited with their parent
type InlineModel interface {
	Rows(ctx context.Context, parentID string, fields []string) ([]Row, error)
	Blank(parentID string, fields []string) Row
	// Save applies changes in order. Rows with an id update that row, rows
	// without one are created, and "DELETE": true removes the row.
	Save(ctx context.Context, parentID string, changes []json.RawMessage) error
}

// Inline edits a child model on its parent's page
type Inline struct {
	// Name is the key holding the rows in detail responses and write bodies
	Name   string      `json:"name"`
	Model  string      `json:"model"`
	Style  InlineStyle `json:"style"`
	Fields []string    `json:"fields"`
	Extra  int         `json:"extra"`

	rows InlineModel
}

// ModelAdmin declares how a model is presented by the admin site
type ModelAdmin struct {
	Name               string              `json:"name"`
	VerboseName        string              `json:"verbose_name"`
	VerboseNamePlural  string              `json:"verbose_name_plural"`
	Fields             []string            `json:"fields"`
	ListDisplay        []string            `json:"list_display"`
	SearchFields       []string            `json:"search_fields,omitempty"`
	ListFilter         []string            `json:"list_filter,omitempty"`
	Ordering           []string            `json:"ordering,omitempty"`
	PrepopulatedFields map[string][]string `json:"prepopulated_fields,omitempty"`
	Inlines            []Inline            `json:"inlines,omitempty"`

	model Model
}

// Site is the registry of administered models
type Site struct {
	mu     sync.RWMutex
	admins map[string]*ModelAdmin
	order  []string
}

// NewSite creates an empty admin site
func NewSite() *Site {
	return &Site{admins: make(map[string]*ModelAdmin)}
}

// Register adds a model admin backed by model
func (s *Site) Register(ma ModelAdmin, model Model) error {
	if ma.Name == "" {
		return fmt.Errorf("model admin needs a name")
	}
	if model == nil {
		return fmt.Errorf("model admin %s has no model", ma.Name)
	}
	for _, in := range ma.Inlines {
		if in.rows == nil {
			return fmt.Errorf("inline %s of %s has no model", in.Name, ma.Name)
		}
	}
	if len(ma.ListDisplay) == 0 {
		ma.ListDisplay = []string{"__str__"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.admins[ma.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, ma.Name)
	}
	ma.model = model
	s.admins[ma.Name] = &ma
	s.order = append(s.order, ma.Name)
	return nil
}

// Lookup returns the admin registered under name
func (s *Site) Lookup(name string) (*ModelAdmin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ma, ok := s.admins[name]
	return ma, ok
}

// Registered returns the model admins in registration order
func (s *Site) Registered() []ModelAdmin {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModelAdmin, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.admins[name])
	}
	return out
}
