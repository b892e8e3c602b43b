package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/config"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var profileID string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived backfill runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Runs == nil {
				return fmt.Errorf("%w: run archive", config.ErrMissingConfig)
			}
			runs, err := a.Runs.RecentRuns(cmd.Context(), profileID, limit)
			if err != nil {
				return err
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, runs)
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.ProfileID,
					itoa(r.CandidatesFound),
					string(r.FilterMode),
					itoa(r.NewAdded),
					itoa(r.DuplicatesSkipped),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs archived")
				return nil
			}
			printTable(cmd, []string{"Started", "Profile", "Candidates", "Filter", "Added", "Skipped"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight})
			return nil
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "Only runs for this profile id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.AddCommand(newRunShowCommand(ctx))
	return cmd
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run with the podcasts it selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Runs == nil {
				return fmt.Errorf("%w: run archive", config.ErrMissingConfig)
			}
			rec, err := a.Runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, rec)
			}
			printSummary(cmd, &rec.Summary)
			if rec.FilterReason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Filter: %s\n", rec.FilterReason)
			}
			if rec.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", rec.Error)
			}
			if len(rec.SelectedIDs) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Selected: %s\n", strings.Join(rec.SelectedIDs, ", "))
			}
			return nil
		},
	}
}
