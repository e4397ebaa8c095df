package audit

import (
	"context"
	"errors"
)

// MultiLogger writes every entry to several loggers in order
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to each of loggers
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes entry to every logger, even when an earlier one fails, and
// returns the first error
func (m *MultiLogger) Log(ctx context.Context, entry *Entry) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// History answers from the first logger that keeps history
func (m *MultiLogger) History(ctx context.Context, filter Filter) ([]Entry, error) {
	for _, logger := range m.loggers {
		if r, ok := logger.(Reader); ok {
			return r.History(ctx, filter)
		}
	}
	return nil, ErrNoHistory
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
