package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/justestif/go-spotify-wrapped/internal/db"
)

type cacheStats struct {
	Backend     string     `json:"backend"`
	Location    string     `json:"location,omitempty"`
	Features    int64      `json:"features"`
	Artists     int64      `json:"artists"`
	OldestFetch *time.Time `json:"oldest_fetch"`
	NewestFetch *time.Time `json:"newest_fetch"`
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the persistent feature cache",
	}
	cmd.AddCommand(a.cacheStatsCmd(), a.cachePruneCmd())
	return cmd
}

func (a *app) cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show feature cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			store, err := db.Open(cmd.Context(), cfg.DatabaseURL, cfg.Cache.Path)
			if err != nil {
				return fmt.Errorf("opening feature cache: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cacheStats{
				Backend:     stats.Backend,
				Features:    stats.Features,
				Artists:     stats.Artists,
				OldestFetch: timePtr(stats.OldestFetch),
				NewestFetch: timePtr(stats.NewestFetch),
			}
			if stats.Backend == db.BackendSQLite {
				out.Location = cfg.Cache.Path
			}

			if a.format == formatJSON {
				return writeJSON(a.stdout, out)
			}

			table := tablewriter.NewWriter(a.stdout)
			table.Header([]string{"Backend", "Features", "Artists", "Oldest", "Newest"})
			if err := table.Append([]string{
				out.Backend,
				humanize.Comma(out.Features),
				humanize.Comma(out.Artists),
				relative(out.OldestFetch),
				relative(out.NewestFetch),
			}); err != nil {
				return err
			}
			return table.Render()
		},
	}
}

func (a *app) cachePruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached feature vectors older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			store, err := db.Open(cmd.Context(), cfg.DatabaseURL, cfg.Cache.Path)
			if err != nil {
				return fmt.Errorf("opening feature cache: %w", err)
			}
			defer store.Close()

			removed, err := store.PruneFeatures(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			a.logger.Debug("pruned feature cache", "removed", removed, "older_than", olderThan)

			if a.format == formatJSON {
				return writeJSON(a.stdout, map[string]int64{"removed": removed})
			}
			fmt.Fprintf(a.stdout, "Removed %s cached feature vectors\n", humanize.Comma(removed))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "remove vectors fetched longer ago than this")
	return cmd
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func relative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}
