package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/config"
)

func newRefreshFeedsCommand(ctx *commandContext) *cobra.Command {
	var maxBatches int

	cmd := &cobra.Command{
		Use:   "refresh-feeds",
		Short: "Refresh episode stats and contact emails from podcast RSS feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Feeds == nil {
				return fmt.Errorf("%w: DATABASE_URL", config.ErrMissingConfig)
			}
			a.Feeds.SetMaxBatches(maxBatches)

			rep, err := a.Feeds.Run(cmd.Context())
			if *ctx.jsonOut {
				if jerr := writeJSON(cmd, rep); jerr != nil {
					return jerr
				}
				return err
			}
			printTable(cmd, []string{"Batches", "Checked", "Updated", "Failed", "Emails found"},
				[][]string{{itoa(rep.Batches), itoa(rep.Checked), itoa(rep.Updated), itoa(rep.Failed), itoa(rep.EmailsFound)}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight})
			return err
		},
	}
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "Stop after this many batches (0 = until nothing is due)")
	return cmd
}
