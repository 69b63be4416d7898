package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables visible to the model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runTables(cmd.Context(), cmd.OutOrStdout(), a)
	},
}

func runTables(ctx context.Context, out io.Writer, a *app) error {
	tables, err := a.schemas.Tables(ctx)
	if err != nil {
		return err
	}

	if len(tables) == 0 {
		fmt.Fprintln(out, "No visible tables. Check schema.tables and schema.exclude.")
		return nil
	}

	indexed := map[string]bool{}
	for _, t := range a.indexer.IndexedTables(ctx) {
		indexed[t.TableName] = true
	}

	for _, name := range tables {
		marker := " "
		if indexed[name] {
			marker = "*"
		}

		fmt.Fprintf(out, "%s %s\n", marker, name)
	}

	fmt.Fprintf(out, "\n%d table(s), %d indexed (*)\n", len(tables), len(indexed))

	return nil
}
