package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/errors"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the schema index",
	Long:  `Remove the index file. The next 'askdb index' rebuilds it from scratch. This action requires confirmation.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")

		a, err := newIndexApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runClear(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), a, force)
	},
}

func init() {
	clearCmd.Flags().BoolP("force", "f", false, "Skip confirmation prompt")
}

func runClear(ctx context.Context, in io.Reader, out io.Writer, a *app, force bool) error {
	if _, err := os.Stat(a.store.Path()); os.IsNotExist(err) {
		fmt.Fprintln(out, "Index is already empty.")
		clearTableCache(ctx, out, a)

		return nil
	}

	fmt.Fprintf(out, "This will delete:\n")
	fmt.Fprintf(out, "  • %s\n", a.store.Path())

	if status, ok := a.indexer.Status(ctx); ok {
		fmt.Fprintf(out, "  • %d indexed tables (%s)\n", status.TablesCount, status.ModelName)
	}

	fmt.Fprintf(out, "  • %.2f MB of data\n", float64(a.store.SizeBytes())/(1024*1024))

	if !force {
		fmt.Fprintf(out, "\nAre you sure you want to clear the index? This action cannot be undone.\n")
		fmt.Fprintf(out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintln(out, "Operation cancelled.")
			return nil
		}
	}

	if err := a.indexer.Clear(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to clear index")
	}

	fmt.Fprintln(out, "Index cleared successfully.")
	clearTableCache(ctx, out, a)

	return nil
}

// clearTableCache drops cached table listings so the next run re-reads the
// database. Failures only warn; the index itself is already gone.
func clearTableCache(ctx context.Context, out io.Writer, a *app) {
	if a.cfg.Schema.CacheTTL <= 0 {
		return
	}

	if _, err := os.Stat(a.cfg.Cache.Directory); os.IsNotExist(err) {
		return
	}

	fc, err := a.openCache()
	if err != nil {
		a.logger.WithError(err).Warn("failed to open table cache")
		return
	}
	defer fc.Close()

	if err := fc.Clear(ctx); err != nil {
		a.logger.WithError(err).Warn("failed to clear table cache")
		return
	}

	fmt.Fprintln(out, "Table cache cleared.")
}
