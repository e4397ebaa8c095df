package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/admin"
	"github.com/platinummonkey/subscriptions/pkg/api"
	"github.com/platinummonkey/subscriptions/pkg/audit"
	"github.com/platinummonkey/subscriptions/pkg/config"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/middleware"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/platinummonkey/subscriptions/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "Optional .env file to load before the environment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*envFile)
	if err != nil {
		return err
	}

	ctx, stop := observability.NotifyContext(context.Background())
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	conns, err := connect(cfg.Storage, true, logger)
	if err != nil {
		return err
	}
	defer conns.Close()
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	var redisClient *postgres.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, caching in process only")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var (
		registry  *prometheus.Registry
		metrics   *observability.Metrics
		recorders observability.Recorders
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		observability.RegisterRuntimeCollectors(registry, conns.Primary())
		recorders = append(recorders, metrics)
	}
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(nil)
		if err != nil {
			return err
		}
		recorders = append(recorders, otelMetrics)
	}

	var store storage.Store = postgres.NewStore(conns)
	if cfg.Storage.CacheEnabled {
		store = postgres.NewCachedStore(store, redisClient, cfg.Storage, logger).WithRecorder(recorders)
	}

	syncCurrencies := func(ctx context.Context, defs currency.Definitions) error {
		changed, err := store.SyncCurrencies(ctx, defs)
		recorders.RecordCurrencySync(ctx, changed, err)
		if err != nil {
			return err
		}
		logger.WithField("changed", changed).Info("Currencies synced")
		return nil
	}
	if cfg.Currency.SyncOnStart {
		defs, err := currencyDefinitions(cfg.Currency)
		if err != nil {
			return err
		}
		if err := syncCurrencies(ctx, defs); err != nil {
			return err
		}
	}

	health := observability.NewHealthChecker(version)
	health.AddCheck("postgres", true, conns.HealthCheck)
	if redisClient != nil {
		health.AddCheck("redis", false, redisClient.Ping)
	}

	opts, err := apiOptions(ctx, cfg, store, redisClient, logger)
	if err != nil {
		return err
	}
	opts.Metrics = metrics
	opts.Health = health
	if cfg.Admin.Enabled {
		auditLog, err := adminAuditLog(cfg.Admin, conns.Primary())
		if err != nil {
			return err
		}
		defer auditLog.Close()
		opts.AuditLog = auditLog
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	probes := http.NewServeMux()
	probes.HandleFunc("/health", health.Liveness)
	probes.HandleFunc("/ready", health.Readiness)
	if registry != nil {
		probes.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           probes,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.Register("health server", healthServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API listening on %s", server.Addr)
		return listen(server)
	})
	g.Go(func() error {
		logger.Infof("Probes listening on %s", healthServer.Addr)
		return listen(healthServer)
	})
	if cfg.Currency.Watch {
		watcher, err := currency.NewWatcher(cfg.Currency.DefinitionsFile, syncCurrencies, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on %s: %w", server.Addr, err)
	}
	return nil
}

// adminAuditLog records admin changes in the database and, when configured,
// in a rotating JSON lines file
func adminAuditLog(cfg config.AdminConfig, db *sql.DB) (audit.Logger, error) {
	dbLog, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, err
	}
	if cfg.AuditLogDir == "" {
		return dbLog, nil
	}
	fileLog, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.AuditLogDir, Rotate: true})
	if err != nil {
		return nil, err
	}
	return audit.NewMultiLogger(dbLog, fileLog), nil
}

// apiOptions builds the routing options shared by every listener
func apiOptions(ctx context.Context, cfg *config.Config, store storage.Store, redisClient *postgres.RedisClient, logger *observability.Logger) (api.Options, error) {
	opts := api.Options{
		Store:          store,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}

	if cfg.Admin.JWTSecret != "" {
		opts.StaffAuth = middleware.NewStaffAuth([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer)
	}
	if cfg.Admin.Enabled {
		site := admin.NewSite()
		if err := admin.RegisterModels(site, store); err != nil {
			return opts, fmt.Errorf("failed to register admin models: %w", err)
		}
		opts.AdminSite = site
	}

	if cfg.Server.RateLimitPerMinute > 0 {
		rlCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.Server.RateLimitBurst,
		}
		if redisClient != nil {
			opts.Limiter = middleware.NewDistributedRateLimiter(redisClient.Client(), rlCfg, "")
		} else {
			limiter := middleware.NewRateLimiter(rlCfg)
			limiter.StartCleanup(ctx)
			opts.Limiter = limiter
		}
	}

	return opts, nil
}
