package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/backfill"
	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

type profileFlags struct {
	prospect string
	client   string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.prospect, "prospect", "", "Prospect id")
	cmd.Flags().StringVar(&f.client, "client", "", "Client id")
}

func (f *profileFlags) resolve() (domain.ProfileKind, string, error) {
	switch {
	case f.prospect != "" && f.client != "":
		return "", "", errors.New("use --prospect or --client, not both")
	case f.prospect != "":
		return domain.ProfileProspect, f.prospect, nil
	case f.client != "":
		return domain.ProfileClient, f.client, nil
	default:
		return "", "", errors.New("--prospect or --client is required")
	}
}

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var who profileFlags
	var sheet string
	var target int
	var skipLLM bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Append matching podcasts to a profile's outreach sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := who.resolve()
			if err != nil {
				return err
			}
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Backfill == nil {
				return fmt.Errorf("%w: backfill needs database, OpenAI and Google service account settings", config.ErrMissingConfig)
			}

			sum, err := a.Backfill.Run(cmd.Context(), backfill.Request{
				ProfileID:     id,
				Kind:          kind,
				SpreadsheetID: sheet,
				TargetSize:    target,
				SkipLLM:       skipLLM,
			})
			if err != nil {
				return err
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, sum)
			}
			printSummary(cmd, sum)
			return nil
		},
	}
	who.register(cmd)
	cmd.Flags().StringVar(&sheet, "sheet", "", "Spreadsheet id (defaults to the profile's)")
	cmd.Flags().IntVar(&target, "target", 0, "Number of podcasts to select")
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Take the top matches by similarity without the model filter")
	return cmd
}

func printSummary(cmd *cobra.Command, s *domain.BackfillSummary) {
	rows := [][]string{
		{"Run", s.RunID},
		{"Profile", fmt.Sprintf("%s %s", s.ProfileKind, s.ProfileID)},
		{"Spreadsheet", s.SpreadsheetID},
		{"Candidates", itoa(s.CandidatesFound)},
		{"Selected", fmt.Sprintf("%d (%s)", s.Selected, s.FilterMode)},
		{"Added", itoa(s.NewAdded)},
		{"Duplicates skipped", itoa(s.DuplicatesSkipped)},
		{"Duration", fmt.Sprintf("%dms", s.DurationMS)},
	}
	if s.DedupDegraded {
		rows = append(rows, []string{"Warning", "sheet could not be read; duplicates were not checked"})
	}
	printTable(cmd, []string{"Field", "Value"}, rows, nil)
}
