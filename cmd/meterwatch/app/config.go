package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/meterwatch/meterwatch/pkg/constants"
)

// Config holds the application configuration loaded from config files,
// environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Catalog access
	CatalogURL      string
	CatalogUsername string
	CatalogPassword string
	CatalogAPIKey   string

	// Database
	DatabaseURL string

	// Rule tuning
	RulesFile   string
	StaleWindow time.Duration

	// Run tuning
	MaxPartitionQueries   int
	MaxConcurrentDevices  int
	MaxRetries            int
	RetryBackoff          time.Duration
	PartitionQueryTimeout time.Duration

	// Scheduling
	ScheduleAt  string
	MetricsAddr string

	// Logging configuration
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from all sources in order of
// precedence: command-line flags (handled by cobra), environment
// variables, .env files, the config file, then defaults.
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindSecrets()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".meterwatch")
		}
	}
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),

		ConfigFile: viper.ConfigFileUsed(),

		CatalogURL:      viper.GetString("catalog_url"),
		CatalogUsername: viper.GetString("catalog_username"),
		CatalogPassword: viper.GetString("catalog_password"),
		CatalogAPIKey:   viper.GetString("catalog_api_key"),

		DatabaseURL: viper.GetString("database_url"),

		RulesFile:   viper.GetString("rules_file"),
		StaleWindow: viper.GetDuration("stale_window"),

		MaxPartitionQueries:   viper.GetInt("max_partition_queries"),
		MaxConcurrentDevices:  viper.GetInt("max_concurrent_devices"),
		MaxRetries:            viper.GetInt("max_retries"),
		RetryBackoff:          viper.GetDuration("retry_backoff"),
		PartitionQueryTimeout: viper.GetDuration("partition_query_timeout"),

		ScheduleAt:  viper.GetString("schedule_at"),
		MetricsAddr: viper.GetString("metrics_addr"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
	}

	// Defaults
	if config.StaleWindow == 0 {
		config.StaleWindow = constants.StaleReadingWindow
	}
	if config.MaxPartitionQueries == 0 {
		config.MaxPartitionQueries = constants.MaxPartitionQueries
	}
	if config.MaxConcurrentDevices == 0 {
		config.MaxConcurrentDevices = constants.MaxConcurrentDevices
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = constants.MaxRetries
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = constants.RetryBackoff
	}
	if config.PartitionQueryTimeout == 0 {
		config.PartitionQueryTimeout = constants.PartitionQueryTimeout
	}
	if config.ScheduleAt == "" {
		config.ScheduleAt = constants.DefaultScheduleTime
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags so
// flags take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files;
// .env.local overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// bindSecrets explicitly binds credential environment variables to Viper.
func bindSecrets() {
	for _, key := range []string{
		"CATALOG_URL",
		"CATALOG_USERNAME",
		"CATALOG_PASSWORD",
		"CATALOG_API_KEY",
		"DATABASE_URL",
	} {
		_ = viper.BindEnv(key)
	}
}

// getEnvOrDefault returns the environment variable value or the default
// if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
