package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the active configuration",
	Long:  `Show the active configuration after merging the config file, environment variables, and command-line flags. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfigFromContext(cmd)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")

		return runConfig(cmd.OutOrStdout(), cfg, asJSON)
	},
}

func init() {
	configCmd.Flags().Bool("json", false, "Print the configuration as JSON")
}

func runConfig(out io.Writer, cfg *config.Config, asJSON bool) error {
	cfg = cfg.Redacted()

	if asJSON || cfg.Debug.Enabled {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}

		fmt.Fprintln(out, string(data))

		return nil
	}

	fmt.Fprintf(out, "Config file: %s\n", config.GetConfigPath())

	fmt.Fprintln(out, "\nDatabase:")
	fmt.Fprintf(out, "  Driver: %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  DSN: %s\n", orNone(cfg.Database.DSN))
	fmt.Fprintf(out, "  Row Limit: %d\n", cfg.Database.RowLimit)
	fmt.Fprintf(out, "  Query Timeout: %s\n", cfg.Database.QueryTimeout)

	fmt.Fprintln(out, "\nIndex:")
	fmt.Fprintf(out, "  Path: %s\n", cfg.Index.Path)
	fmt.Fprintf(out, "  Batch Size: %d\n", cfg.Index.BatchSize)
	fmt.Fprintf(out, "  Top K: %d\n", cfg.Index.TopK)

	fmt.Fprintln(out, "\nSchema:")
	fmt.Fprintf(out, "  Tables: %s\n", orNone(strings.Join(cfg.Schema.Tables, ", ")))
	fmt.Fprintf(out, "  Exclude: %s\n", orNone(strings.Join(cfg.Schema.Exclude, ", ")))
	fmt.Fprintf(out, "  Descriptions: %d\n", len(cfg.Schema.Descriptions))
	fmt.Fprintf(out, "  Cache TTL: %ds\n", cfg.Schema.CacheTTL)

	fmt.Fprintln(out, "\nGuard:")
	fmt.Fprintf(out, "  Select Only: %t\n", cfg.Guard.SelectOnly)
	fmt.Fprintf(out, "  Forbidden Tables: %s\n", orNone(strings.Join(cfg.Guard.ForbiddenTables, ", ")))

	fmt.Fprintln(out, "\nLLM:")
	fmt.Fprintf(out, "  Provider: %s\n", cfg.LLM.Provider)
	fmt.Fprintf(out, "  Model: %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "  API Key: %s\n", orNone(cfg.LLM.APIKey))

	fmt.Fprintln(out, "\nEmbedding:")
	fmt.Fprintf(out, "  Provider: %s\n", cfg.Embedding.Provider)
	fmt.Fprintf(out, "  Model: %s\n", cfg.Embedding.Model)
	fmt.Fprintf(out, "  API Key: %s\n", orNone(cfg.Embedding.APIKey))

	fmt.Fprintln(out, "\nLogging:")
	fmt.Fprintf(out, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(out, "  Output: %s\n", cfg.Logging.Output)

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}

	return s
}
