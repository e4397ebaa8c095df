package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/platinummonkey/subscriptions/pkg/storage"
)

type column[T any] func(*T) interface{}

// binding adapts typed store calls to Model. F is the form a write body is
// decoded into; its JSON keys are the editable fields.
type binding[T any, F any, K any] struct {
	parseID func(string) (K, error)
	idOf    func(*T) string
	list    func(context.Context, storage.ListOptions) ([]T, int64, error)
	get     func(context.Context, K) (*T, error)
	create  func(context.Context, *T) error
	update  func(context.Context, *T) error
	remove  func(context.Context, K) error
	blank   func() T
	toForm  func(*T) F
	apply   func(F, *T) error
	columns map[string]column[T]
}

func (b *binding[T, F, K]) project(rec *T, fields []string) Row {
	return project(rec, b.idOf, b.columns, fields)
}

func (b *binding[T, F, K]) List(ctx context.Context, opts storage.ListOptions, fields []string) ([]Row, int64, error) {
	items, total, err := b.list(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]Row, len(items))
	for i := range items {
		rows[i] = b.project(&items[i], fields)
	}
	return rows, total, nil
}

func (b *binding[T, F, K]) Get(ctx context.Context, id string, fields []string) (Row, error) {
	key, err := b.parseID(id)
	if err != nil {
		return nil, err
	}
	rec, err := b.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.project(rec, fields), nil
}

func (b *binding[T, F, K]) Create(ctx context.Context, form json.RawMessage) (string, error) {
	rec := b.blank()
	if err := b.decodeOnto(form, &rec); err != nil {
		return "", err
	}
	if err := b.create(ctx, &rec); err != nil {
		return "", err
	}
	return b.idOf(&rec), nil
}

func (b *binding[T, F, K]) Update(ctx context.Context, id string, form json.RawMessage) error {
	key, err := b.parseID(id)
	if err != nil {
		return err
	}
	current, err := b.get(ctx, key)
	if err != nil {
		return err
	}
	rec := *current
	if err := b.decodeOnto(form, &rec); err != nil {
		return err
	}
	return b.update(ctx, &rec)
}

func (b *binding[T, F, K]) Delete(ctx context.Context, id string) error {
	key, err := b.parseID(id)
	if err != nil {
		return err
	}
	return b.remove(ctx, key)
}

func (b *binding[T, F, K]) decodeOnto(raw json.RawMessage, rec *T) error {
	form := b.toForm(rec)
	if err := decodeForm(raw, &form); err != nil {
		return err
	}
	if err := b.apply(form, rec); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	return nil
}

// inlineBinding adapts child store calls to InlineModel
type inlineBinding[T any, F any] struct {
	rows     func(ctx context.Context, parentID string) ([]T, error)
	blank    func(parentID string) (T, error)
	idOf     func(*T) string
	parentOf func(*T) string
	get      func(context.Context, string) (*T, error)
	create   func(context.Context, *T) error
	update   func(context.Context, *T) error
	remove   func(context.Context, string) error
	toForm   func(*T) F
	apply    func(F, *T) error
	columns  map[string]column[T]
}

func (b *inlineBinding[T, F]) Rows(ctx context.Context, parentID string, fields []string) ([]Row, error) {
	items, err := b.rows(ctx, parentID)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(items))
	for i := range items {
		rows[i] = project(&items[i], b.idOf, b.columns, fields)
	}
	return rows, nil
}

func (b *inlineBinding[T, F]) Blank(parentID string, fields []string) Row {
	rec, err := b.blank(parentID)
	if err != nil {
		return Row{"id": nil}
	}
	row := project(&rec, b.idOf, b.columns, fields)
	row["id"] = nil
	return row
}

func (b *inlineBinding[T, F]) Save(ctx context.Context, parentID string, changes []json.RawMessage) error {
	for i, raw := range changes {
		if err := b.saveOne(ctx, parentID, raw); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (b *inlineBinding[T, F]) saveOne(ctx context.Context, parentID string, raw json.RawMessage) error {
	var control struct {
		ID     json.RawMessage `json:"id"`
		Delete bool            `json:"DELETE"`
	}
	form, err := splitControl(raw, &control)
	if err != nil {
		return err
	}

	id := ""
	if len(control.ID) > 0 && string(control.ID) != "null" {
		id = rawString(control.ID)
	}

	if id == "" {
		if control.Delete {
			return nil
		}
		rec, err := b.blank(parentID)
		if err != nil {
			return err
		}
		if err := b.decodeOnto(form, &rec); err != nil {
			return err
		}
		return b.create(ctx, &rec)
	}

	rec, err := b.get(ctx, id)
	if err != nil {
		return err
	}
	if b.parentOf(rec) != parentID {
		return fmt.Errorf("%w: %s does not belong to %s", storage.ErrInvalidReference, id, parentID)
	}
	if control.Delete {
		return b.remove(ctx, id)
	}
	if err := b.decodeOnto(form, rec); err != nil {
		return err
	}
	return b.update(ctx, rec)
}

func (b *inlineBinding[T, F]) decodeOnto(raw json.RawMessage, rec *T) error {
	form := b.toForm(rec)
	if err := decodeForm(raw, &form); err != nil {
		return err
	}
	if err := b.apply(form, rec); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	return nil
}

func project[T any](rec *T, idOf func(*T) string, columns map[string]column[T], fields []string) Row {
	row := Row{"id": idOf(rec)}
	for _, f := range fields {
		if f == "__str__" {
			row[f] = fmt.Sprint(*rec)
			continue
		}
		if col, ok := columns[f]; ok {
			row[f] = col(rec)
		}
	}
	return row
}

// decodeForm decodes raw onto form, rejecting fields the form does not declare
func decodeForm(raw json.RawMessage, form interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(form); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	return nil
}

// splitControl moves the "id" and "DELETE" keys of an inline row into control
// and returns the remaining form
func splitControl(raw json.RawMessage, control interface{}) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	if err := json.Unmarshal(raw, control); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalid, err)
	}
	delete(fields, "id")
	delete(fields, "DELETE")
	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode form: %w", err)
	}
	return rest, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseInt64ID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", storage.ErrNotFound, s)
	}
	return id, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", storage.ErrNotFound, s)
	}
	return id, nil
}
