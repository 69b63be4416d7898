package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

type configKey struct{}

// stringFlags maps persistent flag names to config override keys
var stringFlags = []string{
	"db-driver", "dsn", "index-path", "llm-provider", "llm-model",
	"embedding-provider", "embedding-model", "log-level",
}

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "Ask questions of a SQL database in plain language",
	Long: `askdb converts natural language questions into SQL using an LLM. Large schemas are
handled by a local embedding index that picks the tables relevant to each question, and
every generated statement passes a safety guard before it reaches the database.

Configuration is read from ~/.config/askdb/config.yaml (or $ASKDB_CONFIG), then
ASKDB_* environment variables, then flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default ~/.config/askdb/config.yaml)")
	flags.String("db-driver", "", "Target database driver: postgres, mysql, sqlite, duckdb")
	flags.String("dsn", "", "Target database connection string")
	flags.String("index-path", "", "Path of the schema index file")
	flags.String("llm-provider", "", "Completion provider: openai, anthropic, ollama")
	flags.String("llm-model", "", "Completion model")
	flags.String("embedding-provider", "", "Embedding provider: openai, ollama, none")
	flags.String("embedding-model", "", "Embedding model")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.Bool("debug", false, "Enable debug mode")
	flags.BoolP("quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(askCmd, indexCmd, statusCmd, tablesCmd, schemaCmd, clearCmd, configCmd, serveCmd)
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(os.Stderr, err)
	}

	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var structured *errors.Error
	if errors.As(err, &structured) {
		for _, s := range structured.Suggestions {
			fmt.Fprintf(w, "  hint: %s\n", s)
		}
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("ASKDB_CONFIG", path); err != nil {
			return err
		}
	}

	overrides := map[string]interface{}{}

	for _, name := range stringFlags {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			overrides[name] = v
		}
	}

	for _, name := range []string{"verbose", "debug"} {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetBool(name)
			overrides[name] = v
		}
	}

	if f := cmd.Flags().Lookup("addr"); f != nil && f.Changed {
		overrides["addr"] = f.Value.String()
	}

	if f := cmd.Flags().Lookup("batch-size"); f != nil && f.Changed {
		n, _ := cmd.Flags().GetInt("batch-size")
		overrides["batch-size"] = n
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("run 'askdb config' to inspect the active settings")
	}

	cfg.ExpandAllPaths()

	if cfg.Debug.Verbose || cfg.Debug.Enabled {
		cfg.Logging.Level = "debug"
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to initialize logging")
	}

	cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))

	return nil
}

// GetConfigFromContext returns the configuration loaded by the root command
func GetConfigFromContext(cmd *cobra.Command) (*config.Config, error) {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg, nil
	}

	return nil, errors.NewConfigError("configuration was not loaded", "")
}

func quiet(cmd *cobra.Command) bool {
	q, _ := cmd.Flags().GetBool("quiet")
	return q
}
