package main

import (
	"context"
	"flag"
	"os"

	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage/postgres"
)

func runSeedCurrencies(args []string) error {
	fs := flag.NewFlagSet("seed-currencies", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "Optional .env file to load before the environment")
	file := fs.String("file", "", "Currency definitions YAML (defaults to the configured file, then the built-in table)")
	dryRun := fs.Bool("dry-run", false, "Print the definitions instead of writing them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	if *file != "" {
		cfg.Currency.DefinitionsFile = *file
	}

	defs, err := currencyDefinitions(cfg.Currency)
	if err != nil {
		return err
	}

	if *dryRun {
		out, err := defs.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	ctx, stop := observability.NotifyContext(context.Background())
	defer stop()

	conns, err := connect(cfg.Storage, false, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	changed, err := postgres.NewStore(conns).SyncCurrencies(ctx, defs)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"locales": len(defs),
		"changed": changed,
	}).Info("Currencies synced")
	return nil
}
