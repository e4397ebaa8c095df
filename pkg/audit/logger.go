package audit

import (
	"context"
	"errors"
)

// ErrNoHistory is returned by loggers that cannot answer history queries
var ErrNoHistory = errors.New("audit log does not keep history")

// Logger records admin changes
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	Close() error
}

// Reader returns recorded changes, newest first
type Reader interface {
	History(ctx context.Context, filter Filter) ([]Entry, error)
}

// noOpLogger drops every entry
type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *Entry) error { return nil }
func (noOpLogger) Close() error                      { return nil }

// NoOp returns a Logger that discards entries
func NoOp() Logger {
	return noOpLogger{}
}
