package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/indexer"
	"github.com/kyleking/askdb/internal/logging"
)

var indexCmd = &cobra.Command{
	Use:   "index [table...]",
	Short: "Build or refresh the schema index",
	Long: `Embed the schema of every visible table (or only the named tables) into the local
index. Tables whose schema is unchanged since the last run are skipped unless --force is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return logging.LoggerMiddleware("index", func() error {
			return runIndex(cmd.Context(), cmd.OutOrStdout(), a, indexer.Options{Tables: args, Force: force}, quiet(cmd))
		})
	},
}

func init() {
	indexCmd.Flags().Bool("force", false, "Re-embed tables even when unchanged")
	indexCmd.Flags().Int("batch-size", 0, "Tables per embedding request (default index.batch_size)")
}

func runIndex(ctx context.Context, out io.Writer, a *app, opts indexer.Options, quiet bool) error {
	if a.embedder == nil && a.embedderErr != nil {
		return a.embedderErr
	}

	p := newProgress(os.Stderr, "Indexing tables...", quiet)
	opts.Progress = func(done, total int) {
		p.Update("Indexing tables... %d/%d", done, total)
	}

	result, err := a.indexer.Index(ctx, opts)
	p.Stop()

	if err != nil {
		return err
	}

	printIndexResult(out, result)

	if len(result.Errors) > 0 && result.Indexed == 0 && result.Skipped == 0 {
		return errors.Newf(errors.ErrTypeProvider, "index run failed for every batch (%d errors)", len(result.Errors))
	}

	return nil
}

func printIndexResult(out io.Writer, result *indexer.Result) {
	if result.TablesCount == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "No tables to index.")
		return
	}

	fmt.Fprintf(out, "Indexed %d, skipped %d unchanged (%d tables) in %s\n",
		result.Indexed, result.Skipped, result.TablesCount, result.Duration.Round(time.Millisecond))

	if result.RunID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\n%d error(s):\n", len(result.Errors))

		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
}
