package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from config files,
// environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Catalog configuration
	StoreDir string
	HubURL   string
	Token    string

	// Sync configuration
	Mode              string
	ForceFull         bool
	DryRun            bool
	RequestsPerSecond int
	MaxConcurrent     int
	Strategies        []StrategyEntry
	AutoSyncEnabled   bool
	AutoSyncInterval  time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string
}

// StrategyEntry is one discovery strategy from the config file.
type StrategyEntry struct {
	Name  string `mapstructure:"name"`
	Query string `mapstructure:"query"`
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. Environment variables
//  3. .env files
//  4. Config file (~/.quantmap.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	bindHubTokens()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".quantmap")
		}
	}

	// A missing config file is fine; everything has a default.
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),
		Format:  viper.GetString("format"),

		ConfigFile: viper.ConfigFileUsed(),

		StoreDir: viper.GetString("store_dir"),
		HubURL:   viper.GetString("hub_url"),
		Token:    firstNonEmpty(viper.GetString("hf_token"), viper.GetString("huggingface_api_key")),

		Mode:              viper.GetString("mode"),
		ForceFull:         viper.GetBool("force_full"),
		DryRun:            viper.GetBool("dry_run"),
		RequestsPerSecond: viper.GetInt("requests_per_second"),
		MaxConcurrent:     viper.GetInt("max_concurrent"),
		AutoSyncEnabled:   viper.GetBool("auto_sync_enabled"),
		AutoSyncInterval:  viper.GetDuration("auto_sync_interval"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
	}

	if err := viper.UnmarshalKey("strategies", &config.Strategies); err != nil {
		return nil, err
	}

	if config.StoreDir == "" {
		config.StoreDir = "quantmap-data"
	}
	if config.Mode == "" {
		config.Mode = "auto"
	}
	if config.AutoSyncInterval == 0 {
		config.AutoSyncInterval = 6 * time.Hour
	}

	return config, nil
}

// UpdateFromFlags applies parsed command flags, which take precedence
// over config file and environment values.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// bindHubTokens explicitly binds hub token environment variables.
func bindHubTokens() {
	for _, key := range []string{"HF_TOKEN", "HUGGINGFACE_API_KEY"} {
		_ = viper.BindEnv(key)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
