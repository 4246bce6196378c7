package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dripdrop/musicjobs/internal/store"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres job store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg.Store.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			db, err := store.OpenPostgres(cmd.Context(), cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(cmd.Context(), db, ctx.loggerValue()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}
