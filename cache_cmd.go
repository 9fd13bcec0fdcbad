package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/telcprep/sprachcache/internal/cache"
)

var (
	cacheType string
	evictDays int

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the local cache",
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage and estimated savings",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app) error {
			st, err := a.store.Statistics(ctx, cfg.Owner, cache.ContentType(cacheType))
			if err != nil {
				return err
			}
			fmt.Println(label("Owner") + cfg.Owner)
			fmt.Println(label("Cached entries") + humanize.Comma(st.TotalCached))
			fmt.Println(label("Accesses") + humanize.Comma(st.TotalAccesses))
			fmt.Println(label("Saved synthesis calls") + humanize.Comma(st.EstimatedSavedCalls))
			fmt.Println(label("Savings") + fmt.Sprintf("%d%%", st.EstimatedSavingsPercent))
			fmt.Println(label("Size") + humanize.Bytes(uint64(st.TotalBytes))) //nolint:gosec
			return nil
		}),
	}

	cacheEvictCmd = &cobra.Command{
		Use:   "evict",
		Short: "Remove entries not used for a number of days",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app) error {
			n, err := a.maintenance.EvictOlderThan(ctx, cfg.Owner, evictDays)
			if err != nil {
				return err
			}
			fmt.Printf("Evicted %s entries\n", keyword(humanize.Comma(n)))
			return nil
		}),
	}

	cachePurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Remove every entry of the owner",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app) error {
			n, err := a.store.Purge(ctx, cfg.Owner, cache.ContentType(cacheType))
			if err != nil {
				return err
			}
			fmt.Printf("Purged %s entries\n", keyword(humanize.Comma(n)))
			return nil
		}),
	}
)

// withApp adapts fn to a cobra RunE with the services opened.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck
		return fn(ctx, a)
	}
}

func init() {
	cacheStatsCmd.Flags().StringVarP(&cacheType, "type", "t", "", "only count one content type")
	cachePurgeCmd.Flags().StringVarP(&cacheType, "type", "t", "", "only purge one content type")
	cacheEvictCmd.Flags().IntVar(&evictDays, "days", 0, "age in days, defaults to the configured retention")
	cacheCmd.AddCommand(cacheStatsCmd, cacheEvictCmd, cachePurgeCmd)
}
