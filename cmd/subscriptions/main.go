package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/subscriptions/pkg/config"
	"github.com/platinummonkey/subscriptions/pkg/currency"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/platinummonkey/subscriptions/pkg/storage/postgres"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"serve":           runServe,
	"migrate":         runMigrate,
	"seed-currencies": runSeedCurrencies,
	"issue-token":     runIssueToken,
}

func usage() {
	fmt.Fprintf(os.Stderr, `subscriptions - subscription plans and billing (version %s)

Usage:
  subscriptions <command> [options]

Commands:
  serve            Run the catalogue API, admin site and probes
  migrate          Apply pending database migrations
  seed-currencies  Sync currency definitions into the database
  issue-token      Sign a bearer token for the admin site or the user API

Configuration is read from SUBSCRIPTIONS_* environment variables and an
optional .env file. Run 'subscriptions <command> -h' for command options.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "-h", "--help", "help":
		usage()
		return
	case "-v", "--version", "version":
		fmt.Println(version)
		return
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads envFile, then the environment
func loadConfig(envFile string) (*config.Config, *observability.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)
	return cfg, logger, nil
}

func connect(cfg storage.Config, withReplicas bool, logger *observability.Logger) (*postgres.ConnectionManager, error) {
	connCfg := postgres.ConnectionConfig{
		PrimaryURL: cfg.PostgresURL,
		MaxConns:   cfg.PostgresMaxConns,
		MinConns:   cfg.PostgresMinConns,
		Timeout:    cfg.PostgresTimeout,
	}
	if withReplicas {
		connCfg.ReplicaURLs = postgres.ParseReplicaURLs(cfg.PostgresReplicaURLs)
	}
	return postgres.NewConnectionManager(connCfg, logger)
}

// currencyDefinitions prefers the configured file over the built-in table
func currencyDefinitions(cfg config.CurrencyConfig) (currency.Definitions, error) {
	if cfg.DefinitionsFile == "" {
		return currency.DefaultDefinitions(), nil
	}
	return currency.LoadDefinitionsFile(cfg.DefinitionsFile)
}
