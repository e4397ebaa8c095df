// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on one typed key.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/subscriptions/pkg/contextkeys"
//	ctx = contextkeys.WithStaff(ctx, staff)
//	staff, ok := ctx.Value(contextkeys.StaffKey).(*middleware.Staff)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// StaffKey contains *middleware.Staff
	// Set by: middleware.StaffAuth (pkg/middleware/auth.go)
	// Required by: admin site handlers
	StaffKey Key = "staff"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger
	RequestIDKey Key = "request_id"

	// StaffIDKey contains the authenticated staff user id as a string
	// Set by: middleware.StaffAuth
	// Used by: Logger
	StaffIDKey Key = "staff_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithStaff adds the authenticated staff member to the context
func WithStaff(ctx context.Context, staff interface{}) context.Context {
	return context.WithValue(ctx, StaffKey, staff)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithStaffID adds the staff user id to the context
func WithStaffID(ctx context.Context, staffID string) context.Context {
	return context.WithValue(ctx, StaffIDKey, staffID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetStaffID retrieves the staff user id from context
func GetStaffID(ctx context.Context) string {
	if staffID, ok := ctx.Value(StaffIDKey).(string); ok {
		return staffID
	}
	return ""
}
