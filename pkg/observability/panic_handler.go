package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
// It must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "renewal run")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// PanicError converts a recovered value into an error that carries the stack.
// A nil value returns nil.
func PanicError(r interface{}) error {
	if r == nil {
		return nil
	}
	return fmt.Errorf("panic: %v\n%s", r, debug.Stack())
}
