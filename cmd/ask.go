package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/query"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Translate a question into SQL and run it",
	Long: `Translate a natural language question into a single SELECT statement, validate it,
and run it against the target database.

Examples:
  askdb ask "how many users signed up last week?"
  askdb ask --dry-run "top 5 products by revenue"
  askdb ask --tables orders,users --format csv "orders per user"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		opts, err := askOptionsFromFlags(cmd, args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return logging.LoggerMiddleware("ask", func() error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), a, opts, quiet(cmd))
		})
	},
}

func init() {
	askCmd.Flags().StringSlice("tables", nil, "Use only these tables as schema context")
	askCmd.Flags().Bool("dry-run", false, "Print the generated SQL without running it")
	askCmd.Flags().Int("limit", 0, "Maximum rows to return (default database.row_limit)")
	askCmd.Flags().StringP("format", "f", "table", "Output format: table, json, csv")
}

type askOptions struct {
	request query.Request
	format  formatter.OutputFormat
}

func askOptionsFromFlags(cmd *cobra.Command, args []string) (askOptions, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return askOptions{}, errors.New(errors.ErrTypeValidation, "question must not be empty")
	}

	tables, _ := cmd.Flags().GetStringSlice("tables")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	limit, _ := cmd.Flags().GetInt("limit")
	formatName, _ := cmd.Flags().GetString("format")

	if limit < 0 {
		return askOptions{}, errors.Newf(errors.ErrTypeValidation, "limit must not be negative: %d", limit)
	}

	format, err := formatter.ParseOutputFormat(formatName)
	if err != nil {
		return askOptions{}, errors.Wrap(err, errors.ErrTypeValidation, "invalid --format")
	}

	return askOptions{
		request: query.Request{Question: question, Tables: tables, DryRun: dryRun, Limit: limit},
		format:  format,
	}, nil
}

func runAsk(ctx context.Context, out io.Writer, a *app, opts askOptions, quiet bool) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}

	p := newProgress(os.Stderr, "Generating SQL...", quiet)
	answer, err := engine.Ask(ctx, opts.request)
	p.Stop()

	if err != nil {
		if unsafeErr, ok := errors.AsUnsafeQuery(err); ok {
			fmt.Fprintf(out, "Rejected query:\n  %s\n", unsafeErr.SQL)
		}

		return err
	}

	if !answer.Executed {
		fmt.Fprintln(out, answer.SQL)
		return nil
	}

	return printAnswer(out, answer, opts.format)
}

func printAnswer(out io.Writer, answer *query.Answer, format formatter.OutputFormat) error {
	result := answer.Result

	text, err := formatter.NewFormatter().FormatRows(result.Columns, result.Rows, format)
	if err != nil {
		return err
	}

	if format != formatter.FormatTable {
		fmt.Fprint(out, text)
		return nil
	}

	fmt.Fprintf(out, "SQL: %s\n", answer.SQL)
	fmt.Fprintf(out, "Tables (%s): %s\n\n", answer.SchemaSource, strings.Join(answer.Tables, ", "))
	fmt.Fprint(out, text)

	if result.Truncated {
		fmt.Fprintln(out, "Results truncated at the row limit; use --limit to raise it.")
	}

	fmt.Fprintf(out, "Query took %s\n", result.Elapsed.Round(time.Millisecond))

	return nil
}
