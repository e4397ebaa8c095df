package main

import (
	"context"
	"flag"

	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage/postgres"
)

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "Optional .env file to load before the environment")
	list := fs.Bool("list", false, "List known migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*envFile)
	if err != nil {
		return err
	}

	if *list {
		for _, m := range postgres.Migrations() {
			logger.WithField("version", m.Version).Info(m.Description)
		}
		return nil
	}

	ctx, stop := observability.NotifyContext(context.Background())
	defer stop()

	conns, err := connect(cfg.Storage, false, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	applied, err := postgres.RunMigrations(ctx, conns.Primary(), logger)
	if err != nil {
		return err
	}
	logger.WithField("applied", applied).Info("Migrations complete")
	return nil
}
