package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/subscriptions/pkg/admin"
	"github.com/platinummonkey/subscriptions/pkg/audit"
	"github.com/platinummonkey/subscriptions/pkg/billing"
	"github.com/platinummonkey/subscriptions/pkg/httputil"
	"github.com/platinummonkey/subscriptions/pkg/middleware"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultMaxBodyBytes = 1 << 20

// Options configures the API server. Only Store and Logger are required.
type Options struct {
	Store  CatalogueStore
	Logger *observability.Logger

	// Metrics instruments every matched route; Registry is served on /metrics
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	// The admin site is mounted when both AdminSite and StaffAuth are set.
	// StaffAuth alone enables the per-user routes.
	AdminSite *admin.Site
	StaffAuth *middleware.StaffAuth
	AuditLog  audit.Logger

	// Limiter throttles /api/v1
	Limiter        middleware.Limiter
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(opts)

	maxBytes := opts.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(opts.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(opts.AllowedOrigins),
		httputil.MaxBytesMiddleware(maxBytes),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "subscriptions")
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}

	// Probes and metrics
	if opts.Health != nil {
		s.router.HandleFunc("/health", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/ready", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}

	// Public catalogue
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	if opts.Limiter != nil {
		v1.Use(middleware.RateLimit(opts.Limiter))
	}
	catalogue := NewCatalogueHandlers(opts.Store)
	catalogue.RegisterRoutes(v1)

	if opts.StaffAuth == nil {
		return
	}
	users := v1.PathPrefix("/users").Subrouter()
	users.Use(opts.StaffAuth.Authenticate)
	catalogue.RegisterUserRoutes(users)

	// Admin site
	if opts.AdminSite != nil {
		adminRouter := s.router.PathPrefix("/admin").Subrouter()
		adminRouter.Use(
			opts.StaffAuth.Handler,
			middleware.RequirePermission(billing.PermissionSubscriptions),
			httputil.ContentTypeMiddleware,
		)
		admin.NewHandlers(opts.AdminSite).WithAuditLog(opts.AuditLog).RegisterRoutes(adminRouter)
	}
}

// Router exposes the route table for callers that add routes of their own
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
