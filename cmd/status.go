package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/schema"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the schema index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		a, err := newIndexApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runStatus(cmd.Context(), cmd.OutOrStdout(), a)
	},
}

func runStatus(ctx context.Context, out io.Writer, a *app) error {
	fmt.Fprintf(out, "Index: %s\n", a.store.Path())

	status, ok := a.indexer.Status(ctx)
	if !ok || !a.indexer.HasIndex(ctx) {
		fmt.Fprintf(out, "Mode: %s (no index; run 'askdb index')\n", schema.ModeCompact)
		return nil
	}

	mode := schema.ModeSmart
	if a.embedder == nil {
		mode = schema.ModeCompact + " (embedding provider disabled)"
	}

	search := "brute force"
	if a.indexer.UsingAcceleratedSearch() {
		search = "accelerated (vss)"
	}

	fmt.Fprintf(out, "Mode: %s\n", mode)
	fmt.Fprintf(out, "Tables: %d\n", status.TablesCount)
	fmt.Fprintf(out, "Model: %s (%d dimensions)\n", status.ModelName, status.Dimension)
	fmt.Fprintf(out, "Last updated: %s (%s)\n", status.LastUpdated.Format("2006-01-02 15:04:05"), formatter.HumanizeAge(status.LastUpdated))

	if status.RunID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", status.RunID)
	}

	fmt.Fprintf(out, "Search: %s\n", search)
	fmt.Fprintf(out, "Size: %.2f MB\n", float64(a.store.SizeBytes())/(1024*1024))
	printCacheStats(ctx, out, a)

	return nil
}

func printCacheStats(ctx context.Context, out io.Writer, a *app) {
	if a.cfg.Schema.CacheTTL <= 0 {
		fmt.Fprintln(out, "Table cache: disabled")
		return
	}

	if _, err := os.Stat(a.cfg.Cache.Directory); os.IsNotExist(err) {
		fmt.Fprintln(out, "Table cache: empty")
		return
	}

	fc, err := a.openCache()
	if err != nil {
		a.logger.WithError(err).Debug("table cache unavailable")
		return
	}
	defer fc.Close()

	stats, err := fc.GetStats(ctx)
	if err != nil {
		a.logger.WithError(err).Debug("failed to read table cache stats")
		return
	}

	fmt.Fprintf(out, "Table cache: %d entries, %.1f KB (ttl %s)\n",
		stats.TotalEntries, float64(stats.TotalSize)/1024, a.cfg.Schema.CacheTTLDuration())
}
