// Package httputil provides HTTP helpers for JSON responses, request parsing and middleware.
//
// Storage errors map onto status codes in one place:
//
//	plan, err := store.GetPlan(ctx, id)
//	if err != nil {
//		httputil.WriteStoreError(w, err) // 404, 409, 400 or 500
//		return
//	}
//
// Middleware composes with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
