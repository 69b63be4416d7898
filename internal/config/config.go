package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ASKDB_"

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `json:"database"  yaml:"database"  envPrefix:"DB_"`
	Index     IndexConfig     `json:"index"     yaml:"index"     envPrefix:"INDEX_"`
	Schema    SchemaConfig    `json:"schema"    yaml:"schema"    envPrefix:"SCHEMA_"`
	Guard     GuardConfig     `json:"guard"     yaml:"guard"     envPrefix:"GUARD_"`
	LLM       LLMConfig       `json:"llm"       yaml:"llm"       envPrefix:"LLM_"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" envPrefix:"EMBEDDING_"`
	Cache     CacheConfig     `json:"cache"     yaml:"cache"     envPrefix:"CACHE_"`
	Logging   LoggingConfig   `json:"logging"   yaml:"logging"   envPrefix:"LOG_"`
	Server    ServerConfig    `json:"server"    yaml:"server"    envPrefix:"SERVER_"`
	Debug     DebugConfig     `json:"debug"     yaml:"debug"`
}

// DatabaseConfig describes the target database questions are asked against
type DatabaseConfig struct {
	Driver          string `json:"driver"             yaml:"driver"             env:"DRIVER"              envDefault:"postgres"` // postgres, mysql, sqlite, duckdb
	DSN             string `json:"dsn"                yaml:"dsn"                env:"DSN"`
	MaxConnections  int    `json:"max_connections"    yaml:"max_connections"    env:"MAX_CONNECTIONS"     envDefault:"5"`
	MaxIdleConns    int    `json:"max_idle_conns"     yaml:"max_idle_conns"     env:"MAX_IDLE_CONNS"      envDefault:"2"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  yaml:"conn_max_lifetime"  env:"CONN_MAX_LIFETIME"   envDefault:"30m"`
	QueryTimeout    string `json:"query_timeout"      yaml:"query_timeout"      env:"QUERY_TIMEOUT"       envDefault:"30s"`
	RowLimit        int    `json:"row_limit"          yaml:"row_limit"          env:"ROW_LIMIT"           envDefault:"100"`
}

// IndexConfig controls the schema retrieval index
type IndexConfig struct {
	Path                string `json:"path"                 yaml:"path"                 env:"PATH"                 envDefault:"~/.config/askdb/index.duckdb"`
	BatchSize           int    `json:"batch_size"           yaml:"batch_size"           env:"BATCH_SIZE"           envDefault:"20"`
	TopK                int    `json:"top_k"                yaml:"top_k"                env:"TOP_K"                envDefault:"5"`
	DisableAcceleration bool   `json:"disable_acceleration" yaml:"disable_acceleration" env:"DISABLE_ACCELERATION" envDefault:"false"`
}

// SchemaConfig selects which tables are visible to the model
type SchemaConfig struct {
	Tables       []string          `json:"tables"       yaml:"tables"       env:"TABLES"       envSeparator:","`
	Exclude      []string          `json:"exclude"      yaml:"exclude"      env:"EXCLUDE"      envSeparator:","`
	Descriptions map[string]string `json:"descriptions" yaml:"descriptions" env:"DESCRIPTIONS" envSeparator:";" envKeyValSeparator:"="`
	CacheTTL     int               `json:"cache_ttl"    yaml:"cache_ttl"    env:"CACHE_TTL"    envDefault:"300"` // seconds, 0 disables
}

// GuardConfig controls query validation
type GuardConfig struct {
	SelectOnly      bool     `json:"select_only"      yaml:"select_only"      env:"SELECT_ONLY"      envDefault:"true"`
	ForbiddenTables []string `json:"forbidden_tables" yaml:"forbidden_tables" env:"FORBIDDEN_TABLES" envSeparator:","`
}

// LLMConfig selects the completion backend
type LLMConfig struct {
	Provider    string  `json:"provider"    yaml:"provider"    env:"PROVIDER"    envDefault:"openai"` // openai, anthropic, ollama
	Model       string  `json:"model"       yaml:"model"       env:"MODEL"       envDefault:"gpt-4o-mini"`
	APIKey      string  `json:"api_key"     yaml:"api_key"     env:"API_KEY"`
	BaseURL     string  `json:"base_url"    yaml:"base_url"    env:"BASE_URL"`
	MaxTokens   int     `json:"max_tokens"  yaml:"max_tokens"  env:"MAX_TOKENS"  envDefault:"1024"`
	Temperature float64 `json:"temperature" yaml:"temperature" env:"TEMPERATURE" envDefault:"0"`
	Timeout     string  `json:"timeout"     yaml:"timeout"     env:"TIMEOUT"     envDefault:"60s"`
}

// EmbeddingConfig selects the embedding backend
type EmbeddingConfig struct {
	Provider  string `json:"provider"  yaml:"provider"  env:"PROVIDER"  envDefault:"openai"` // openai, ollama, none
	Model     string `json:"model"     yaml:"model"     env:"MODEL"     envDefault:"text-embedding-3-small"`
	APIKey    string `json:"api_key"   yaml:"api_key"   env:"API_KEY"`
	BaseURL   string `json:"base_url"  yaml:"base_url"  env:"BASE_URL"`
	Dimension int    `json:"dimension" yaml:"dimension" env:"DIMENSION" envDefault:"0"` // 0 = derive from model
	Timeout   string `json:"timeout"   yaml:"timeout"   env:"TIMEOUT"   envDefault:"30s"`
}

// CacheConfig represents caching configuration
type CacheConfig struct {
	Directory   string `json:"directory"         yaml:"directory"         env:"DIR"          envDefault:"~/.cache/askdb"`
	MaxSizeMB   int    `json:"max_size_mb"       yaml:"max_size_mb"       env:"MAX_SIZE_MB"  envDefault:"50"`
	CleanupFreq string `json:"cleanup_frequency" yaml:"cleanup_frequency" env:"CLEANUP_FREQ" envDefault:"1h"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  yaml:"level"  env:"LEVEL"  envDefault:"info"`                           // debug, info, warn, error
	Format string `json:"format" yaml:"format" env:"FORMAT" envDefault:"console"`                        // console, json
	Output string `json:"output" yaml:"output" env:"OUTPUT" envDefault:"stderr"`                         // stdout, stderr, file
	File   string `json:"file"   yaml:"file"   env:"FILE"   envDefault:"~/.config/askdb/logs/askdb.log"` // log file path when output is file
}

// ServerConfig configures the HTTP front end
type ServerConfig struct {
	Addr         string `json:"addr"          yaml:"addr"          env:"ADDR"          envDefault:":8080"`
	ReadTimeout  string `json:"read_timeout"  yaml:"read_timeout"  env:"READ_TIMEOUT"  envDefault:"15s"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"120s"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" yaml:"verbose" env:"VERBOSE" envDefault:"false"`
}

// DefaultConfig returns the configuration built only from envDefault tags
func DefaultConfig() *Config {
	cfg := &Config{}
	// An empty environment leaves only the defaults; the tags are static so this cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{
		Prefix:      envPrefix,
		Environment: map[string]string{},
	})

	return cfg
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag
// overrides. Precedence: defaults, config file, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	configPath := GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	applyProviderKeyFallbacks(config)

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile decodes a YAML file on top of config. Keys absent from
// the file keep their current values.
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides applies ASKDB_* variables. Defaults are disabled
// here so unset variables never clobber values read from the file.
func applyEnvironmentOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:              envPrefix,
		DefaultValueTagName: "askdbNoDefault",
	}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return nil
}

// applyProviderKeyFallbacks picks up the vendor's conventional API key variables
func applyProviderKeyFallbacks(config *Config) {
	vendorKey := func(provider string) string {
		switch provider {
		case "openai":
			return os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			return os.Getenv("ANTHROPIC_API_KEY")
		default:
			return ""
		}
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = vendorKey(config.LLM.Provider)
	}

	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = vendorKey(config.Embedding.Provider)
	}
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-driver":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Driver = str
			}
		case "dsn":
			if str, ok := value.(string); ok && str != "" {
				config.Database.DSN = str
			}
		case "index-path":
			if str, ok := value.(string); ok && str != "" {
				config.Index.Path = str
			}
		case "batch-size":
			if n, ok := value.(int); ok && n != 0 {
				config.Index.BatchSize = n
			}
		case "llm-provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "llm-model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "embedding-provider":
			if str, ok := value.(string); ok && str != "" {
				config.Embedding.Provider = str
			}
		case "embedding-model":
			if str, ok := value.(string); ok && str != "" {
				config.Embedding.Model = str
			}
		case "exclude":
			if list, ok := value.([]string); ok && len(list) > 0 {
				config.Schema.Exclude = list
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Addr = str
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		default:
			return fmt.Errorf("unknown flag override: %s", key)
		}
	}

	return nil
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"console": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be console or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validDrivers := map[string]bool{
		"postgres": true, "mysql": true, "sqlite": true, "duckdb": true,
	}
	if !validDrivers[config.Database.Driver] {
		return fmt.Errorf(
			"invalid database driver: %s (must be postgres, mysql, sqlite, or duckdb)",
			config.Database.Driver,
		)
	}

	validLLMProviders := map[string]bool{
		"openai": true, "anthropic": true, "ollama": true,
	}
	if !validLLMProviders[config.LLM.Provider] {
		return fmt.Errorf(
			"invalid llm provider: %s (must be openai, anthropic, or ollama)",
			config.LLM.Provider,
		)
	}

	validEmbeddingProviders := map[string]bool{
		"openai": true, "ollama": true, "none": true,
	}
	if !validEmbeddingProviders[config.Embedding.Provider] {
		return fmt.Errorf(
			"invalid embedding provider: %s (must be openai, ollama, or none)",
			config.Embedding.Provider,
		)
	}

	durations := map[string]string{
		"database query timeout":     config.Database.QueryTimeout,
		"database conn max lifetime": config.Database.ConnMaxLifetime,
		"llm timeout":                config.LLM.Timeout,
		"embedding timeout":          config.Embedding.Timeout,
		"cache cleanup frequency":    config.Cache.CleanupFreq,
		"server read timeout":        config.Server.ReadTimeout,
		"server write timeout":       config.Server.WriteTimeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Index.BatchSize <= 0 {
		return fmt.Errorf("index batch size must be positive: %d", config.Index.BatchSize)
	}

	if config.Index.TopK <= 0 {
		return fmt.Errorf("index top_k must be positive: %d", config.Index.TopK)
	}

	if config.Schema.CacheTTL < 0 {
		return fmt.Errorf("schema cache_ttl must not be negative: %d", config.Schema.CacheTTL)
	}

	if config.Database.RowLimit < 0 {
		return fmt.Errorf("database row limit must not be negative: %d", config.Database.RowLimit)
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	return nil
}

// Redacted returns a copy safe to print, with API keys and the DSN masked
func (c *Config) Redacted() *Config {
	out := *c

	mask := func(s string) string {
		if s == "" {
			return ""
		}

		return "********"
	}

	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Embedding.APIKey = mask(c.Embedding.APIKey)
	out.Database.DSN = mask(c.Database.DSN)

	return &out
}

// SaveConfig writes configuration to the config file as YAML
func SaveConfig(config *Config) error {
	configPath := GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.yaml")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Index.Path = expandPath(c.Index.Path)
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/askdb"
	}

	return filepath.Join(homeDir, ".config", "askdb")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Index.Path),
		c.Cache.Directory,
	}

	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// ParseDurationOr parses s, returning fallback when s is empty or malformed
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}

// LookupDescription returns the description configured for table. Names
// match case-insensitively, like the include and exclude lists.
func LookupDescription(descriptions map[string]string, table string) string {
	if desc, ok := descriptions[table]; ok {
		return desc
	}

	for name, desc := range descriptions {
		if strings.EqualFold(strings.TrimSpace(name), table) {
			return desc
		}
	}

	return ""
}

// CacheTTLDuration returns the table-list cache lifetime
func (s SchemaConfig) CacheTTLDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}
