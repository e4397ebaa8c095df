package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/config"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/renewal"
	"github.com/platinummonkey/subscriptions/pkg/storage/postgres"
	"github.com/platinummonkey/subscriptions/pkg/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	envFile = flag.String("env-file", ".env", "Optional .env file to load before the environment")
	runOnce = flag.Bool("run-once", false, "Run one renewal pass and exit")
)

// The renewer bills due subscriptions, retries declined ones and expires
// lapsed ones on the configured cron schedule
func main() {
	flag.Parse()

	log := setupLogger("info")

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log = setupLogger(cfg.Observability.LogLevel.String())
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "subscriptions-renewer")

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping renewer...")
		cancel()
	}()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer observability.ShutdownOTel(context.Background(), providers, logger)

	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL: cfg.Storage.PostgresURL,
		MaxConns:   cfg.Storage.PostgresMaxConns,
		MinConns:   cfg.Storage.PostgresMinConns,
		Timeout:    cfg.Storage.PostgresTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	var opts []renewal.Option
	if cfg.Storage.RedisURL != "" {
		redisClient, err := postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		opts = append(opts, renewal.WithLocker(redisClient))
	} else {
		log.Warn("No redis configured, renewal runs are not serialised across replicas")
	}

	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)
		observability.RegisterRuntimeCollectors(registry, conns.Primary())
		opts = append(opts, renewal.WithRecorder(metrics))

		if !*runOnce {
			serveMetrics(ctx, log, net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort), registry)
		}
	}

	var dispatcher *webhooks.Dispatcher
	if len(cfg.Webhooks.URLs) > 0 {
		dispatcher, err = newDispatcher(cfg.Webhooks, logger)
		if err != nil {
			log.Fatalf("Failed to configure webhooks: %v", err)
		}
		defer dispatcher.Wait()
		opts = append(opts, renewal.WithNotifier(dispatcher))
		log.Infof("Notifying %d webhook endpoint(s)", len(cfg.Webhooks.URLs))
	}

	processor := renewal.NewProcessor(
		postgres.NewStore(conns),
		renewal.AcceptingCharger{Logger: logger},
		logger,
		renewal.Config{
			Workers:       cfg.Renewal.Workers,
			ChargeTimeout: cfg.Renewal.ChargeTimeout,
			LockKey:       cfg.Renewal.LockKey,
			LockTTL:       cfg.Renewal.LockTTL,
		},
		opts...,
	)

	// Run once mode (for backfills and manual runs)
	if *runOnce {
		if err := runRenewal(ctx, processor, logger, log); err != nil {
			log.Fatalf("Renewal run failed: %v", err)
		}
		return
	}

	if dispatcher != nil {
		go func() {
			_ = webhooks.NewRetryWorker(dispatcher).Run(ctx, cfg.Webhooks.RetryInterval)
		}()
	}

	cronLogger := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	_, err = c.AddFunc(cfg.Renewal.Schedule, func() {
		if err := runRenewal(ctx, processor, logger, log); err != nil {
			log.Errorf("Renewal run failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule renewals: %v", err)
	}

	c.Start()
	log.Infof("Subscriptions renewer started with schedule %q", cfg.Renewal.Schedule)

	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Info("Renewer stopped")
}

func newDispatcher(cfg config.WebhookConfig, logger *observability.Logger) (*webhooks.Dispatcher, error) {
	retry := webhooks.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts

	dispatcher := webhooks.NewDispatcher(webhooks.Options{
		Logger:  logger.WithField("component", "webhooks"),
		Timeout: cfg.Timeout,
		Retry:   retry,
	})
	for _, u := range cfg.URLs {
		if err := dispatcher.Register(&webhooks.Endpoint{URL: u, Secret: cfg.Secret}); err != nil {
			return nil, err
		}
	}
	return dispatcher, nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func runRenewal(ctx context.Context, processor *renewal.Processor, logger *observability.Logger, log *logrus.Logger) error {
	defer observability.RecoverPanic(logger, "renewal run")

	start := time.Now()
	summary, err := processor.Process(ctx, start.UTC())
	if err != nil {
		return err
	}
	if summary.Skipped {
		log.Info("Renewal run skipped, another replica holds the lock")
		return nil
	}

	log.WithFields(logrus.Fields{
		"expired":   summary.Expired,
		"activated": summary.Activated,
		"renewed":   summary.Renewed,
		"retrying":  summary.Retrying,
		"failed":    summary.Failed,
		"errors":    len(summary.Errors),
		"duration":  time.Since(start).Round(time.Millisecond),
	}).Info("Renewal run finished")
	for _, err := range summary.Errors {
		log.Warnf("  - %v", err)
	}
	return nil
}

// serveMetrics exposes /metrics until ctx is cancelled
func serveMetrics(ctx context.Context, log *logrus.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler(registry))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("Metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
