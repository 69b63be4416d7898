package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [question]",
	Short: "Show the schema context that would be sent to the model",
	Long: `Without a question, print the compact schema of every visible table. With a
question, print the tables the index selects for it and their compact schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		tables, _ := cmd.Flags().GetStringSlice("tables")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runSchema(cmd.Context(), cmd.OutOrStdout(), a, strings.Join(args, " "), tables)
	},
}

func init() {
	schemaCmd.Flags().StringSlice("tables", nil, "Show only these tables")
}

func runSchema(ctx context.Context, out io.Writer, a *app, question string, tables []string) error {
	if question == "" && len(tables) == 0 {
		visible, err := a.schemas.Tables(ctx)
		if err != nil {
			return err
		}

		text, err := a.schemas.CompactSchema(ctx, visible)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, text)

		return nil
	}

	sel, err := a.schemas.Select(ctx, question, tables)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "-- mode: %s, tables from: %s\n", a.schemas.Mode(ctx), sel.Source)

	if sel.Relevance != nil {
		for _, m := range sel.Relevance.Tables {
			fmt.Fprintf(out, "-- %s %.3f\n", m.TableName, m.Score)
		}
	}

	fmt.Fprintln(out, sel.Schema)

	return nil
}
