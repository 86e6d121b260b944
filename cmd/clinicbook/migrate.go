package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clinicbook/internal/config"
	"clinicbook/internal/store/postgres"
	"clinicbook/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), parseLogLevel(cfg.LogLevel))

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
			db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			defer func() {
				_ = postgres.Close(db)
			}()

			applied, err := postgres.Migrate(ctx, db, migrations.FS)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, v := range applied {
				fmt.Fprintf(out, "applied %s\n", v)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", len(applied))
			return nil
		},
	}
}
