package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// Action is what a staff member did to an object
type Action int

const (
	ActionAddition Action = 1
	ActionChange   Action = 2
	ActionDeletion Action = 3
)

// maxReprLength bounds Entry.ObjectRepr
const maxReprLength = 200

// String returns the action name
func (a Action) String() string {
	switch a {
	case ActionAddition:
		return "addition"
	case ActionChange:
		return "change"
	case ActionDeletion:
		return "deletion"
	default:
		return "unknown"
	}
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	return a >= ActionAddition && a <= ActionDeletion
}

// Entry is one recorded admin change
type Entry struct {
	ID            int64     `json:"id,omitempty"`
	ActionTime    time.Time `json:"action_time"`
	UserID        *int64    `json:"user_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	Model         string    `json:"model"`
	ObjectID      string    `json:"object_id"`
	ObjectRepr    string    `json:"object_repr"`
	Action        Action    `json:"action_flag"`
	ChangeMessage string    `json:"change_message"`
	RequestID     string    `json:"request_id,omitempty"`
}

// NewEntry builds an entry stamped with the current time and the request id
// carried by ctx. The representation is cut to 200 characters.
func NewEntry(ctx context.Context, action Action, model, objectID, repr, message string) *Entry {
	return &Entry{
		ActionTime:    time.Now().UTC(),
		Model:         model,
		ObjectID:      objectID,
		ObjectRepr:    truncate(repr, maxReprLength),
		Action:        action,
		ChangeMessage: message,
		RequestID:     observability.GetRequestID(ctx),
	}
}

// IsAddition reports whether the entry records a creation
func (e *Entry) IsAddition() bool { return e.Action == ActionAddition }

// IsChange reports whether the entry records an update
func (e *Entry) IsChange() bool { return e.Action == ActionChange }

// IsDeletion reports whether the entry records a deletion
func (e *Entry) IsDeletion() bool { return e.Action == ActionDeletion }

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Model    string
	ObjectID string
	UserID   *int64
	Limit    int
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
