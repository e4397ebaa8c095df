// Package middleware provides HTTP middleware for staff authentication and
// rate limiting.
//
// # Staff authentication
//
// StaffAuth validates HS256 bearer tokens signed with the admin JWT secret.
// The token subject is the user id; the claims carry is_staff, is_superuser
// and the permission list. Requests from non-staff users are refused with 403.
//
//	auth := middleware.NewStaffAuth([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer)
//	admin := router.PathPrefix("/admin").Subrouter()
//	admin.Use(auth.Handler, middleware.RequirePermission(billing.PermissionSubscriptions))
//
// Handlers read the caller with StaffFromContext.
//
// # Rate limiting
//
// RateLimit throttles public catalogue clients by IP. Two limiters are
// available:
//
//   - RateLimiter: in-process token bucket
//   - DistributedRateLimiter: Redis fixed window shared by every replica
//
// A limiter error lets the request through.
package middleware
