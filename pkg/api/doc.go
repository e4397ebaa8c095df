// Package api assembles the HTTP surface of the subscriptions service.
//
// NewServer wires a gorilla/mux router behind the shared httputil chain
// (request ids, access logs, panic recovery, CORS, body limits) and an
// otelhttp handler. Routes:
//
//	GET  /health                              liveness
//	GET  /ready                               readiness, probes every dependency
//	GET  /metrics                             Prometheus exposition
//	GET  /api/v1/plan-lists/{slug}            active plan list with its priced plans
//	GET  /api/v1/users/{user_id}/subscriptions the caller's own subscriptions
//	*    /admin/...                           admin site, see package admin
//
// /api/v1 is rate limited per client IP when a Limiter is configured. The
// per-user route takes any bearer token issued by middleware.StaffAuth; a
// caller may read another user's subscriptions only with the subscriptions
// permission. The admin site additionally requires a staff token.
package api
