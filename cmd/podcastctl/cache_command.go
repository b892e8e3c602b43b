package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached podcast snapshots",
	}
	cacheCmd.AddCommand(newCacheGetCommand(ctx))
	return cacheCmd
}

func newCacheGetCommand(ctx *commandContext) *cobra.Command {
	var fallback bool

	cmd := &cobra.Command{
		Use:   "get <podcast-id>...",
		Short: "Look podcasts up in the dashboard and booking caches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if a.Cache == nil {
				return fmt.Errorf("%w: database", config.ErrMissingConfig)
			}

			found := map[string]*domain.CacheEntry{}
			if len(args) == 1 || fallback {
				for _, id := range args {
					lookup := a.Cache.Lookup
					if fallback {
						lookup = a.Cache.Resolve
					}
					e, err := lookup(cmd.Context(), id)
					if err != nil {
						return err
					}
					if e != nil {
						found[id] = e
					}
				}
			} else {
				found, err = a.Cache.LookupBatch(cmd.Context(), args)
				if err != nil {
					return err
				}
			}

			if *ctx.jsonOut {
				return writeJSON(cmd, found)
			}
			rows := make([][]string, 0, len(args))
			for _, id := range args {
				e, ok := found[id]
				if !ok {
					rows = append(rows, []string{id, "", "miss", "", ""})
					continue
				}
				source := string(e.Source)
				if e.FromProvider {
					source = "provider"
				}
				cached := ""
				if !e.CachedAt.IsZero() {
					cached = e.CachedAt.Format("2006-01-02")
					if a.Cache.IsStale(e) {
						cached += " (stale)"
					}
				}
				rows = append(rows, []string{id, truncate(e.Podcast.Name, 40), source, cached, itoa(e.Podcast.AudienceSize)})
			}
			printTable(cmd, []string{"Podcast", "Name", "Source", "Cached", "Audience"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
			return nil
		},
	}
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Ask the podcast data provider on a cache miss")
	return cmd
}
