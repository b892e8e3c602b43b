package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var who profileFlags
	var bio, name, tagline string

	cmd := &cobra.Command{
		Use:   "score <podcast-id>...",
		Short: "Score podcast compatibility for a guest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Scorer == nil {
				return fmt.Errorf("%w: scoring needs a chat model", config.ErrMissingConfig)
			}
			if a.Catalog() == nil {
				return fmt.Errorf("%w: database", config.ErrMissingConfig)
			}

			profile := domain.Profile{Bio: bio, Name: name, Tagline: tagline}
			if bio == "" {
				kind, id, err := who.resolve()
				if err != nil {
					return fmt.Errorf("pass --bio or a profile: %w", err)
				}
				p, err := a.Profiles().Get(cmd.Context(), kind, id)
				if err != nil {
					return err
				}
				profile = *p
			}

			podcasts, err := a.Catalog().GetMany(cmd.Context(), args)
			if err != nil {
				return err
			}
			if len(podcasts) == 0 {
				return fmt.Errorf("none of the podcasts were found: %w", domain.ErrNotFound)
			}
			scores, err := a.Scorer.ScoreAll(cmd.Context(), profile, podcasts)
			if err != nil {
				return err
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, scores)
			}

			names := make(map[string]string, len(podcasts))
			for _, p := range podcasts {
				names[p.ID] = p.Name
			}
			rows := make([][]string, 0, len(scores))
			for _, s := range scores {
				score, note := itoa(s.Score), truncate(s.Reasoning, 70)
				if s.Error != "" {
					score, note = "-", "error: "+truncate(s.Error, 63)
				}
				rows = append(rows, []string{s.PodcastID, truncate(names[s.PodcastID], 30), score, note})
			}
			printTable(cmd, []string{"Podcast", "Name", "Score", "Reasoning"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
			return nil
		},
	}
	who.register(cmd)
	cmd.Flags().StringVar(&bio, "bio", "", "Guest bio (instead of loading a profile)")
	cmd.Flags().StringVar(&name, "name", "", "Guest name")
	cmd.Flags().StringVar(&tagline, "tagline", "", "Guest tagline")
	return cmd
}
