package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/repository/postgres"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("%w: DATABASE_URL", config.ErrMissingConfig)
			}
			db, err := postgres.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db, dryRun)
			if *ctx.jsonOut {
				if jerr := writeJSON(cmd, applied); jerr != nil {
					return jerr
				}
				return err
			}
			rows := make([][]string, 0, len(applied))
			for _, m := range applied {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				rows = append(rows, []string{m.Name, state})
			}
			printTable(cmd, []string{"Migration", "State"}, rows, nil)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list migrations and their state")
	return cmd
}
