package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/fixmyward/ward-service/internal/persistence"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		RunE:  runMigrate,
	}
	migrateDown bool
)

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the latest migration instead of applying")
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required to migrate")
	}

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	direction := "up"
	if migrateDown {
		direction = "down"
	}
	return persistence.RunMigrations(ctx, pg.Pool, direction, logger)
}
