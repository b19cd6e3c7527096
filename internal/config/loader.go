package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
// Uses Go's built-in os.ExpandEnv which is the idiomatic way to handle this
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"/etc/fedmet/config.yaml",
	"/etc/fedmet/config.yml",
}

// Load loads the configuration from the specified file or default locations
func Load(configPath string) (*Config, error) {
	// Set default values
	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "fedmet",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		Fetcher: FetcherConfig{
			ConnectTimeout:  10 * time.Second,
			TransferTimeout: 120 * time.Second,
		},
		Documents: DocumentConfig{
			Dir: "./metadata",
		},
		Mail: MailConfig{
			Port:          25,
			SubjectPrefix: "[fedmet] Refresh error:",
		},
		TopCache: TopCacheConfig{
			Size: 16,
			TTL:  30 * time.Minute,
		},
		Metrics: MetricsConfig{
			Job: "fedmet_refresh",
		},
		LockFile: "/tmp/fedmet-refresh.pid",
	}

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	// Load configuration from file if it exists
	if configPath != "" && fileExists(configPath) {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if config.Stats.Features == nil {
		config.Stats.Features = DefaultFeatures()
	}

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromDefaults loads configuration using only defaults and environment variables
func LoadFromDefaults() (*Config, error) {
	return Load("")
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	if config.Database.Postgres.Host == "" {
		return fmt.Errorf("postgres host is required")
	}
	if config.Database.Postgres.Database == "" {
		return fmt.Errorf("postgres database name is required")
	}
	if config.Database.Postgres.User == "" {
		return fmt.Errorf("postgres user is required")
	}

	if config.Fetcher.ConnectTimeout <= 0 {
		return fmt.Errorf("fetcher.connect_timeout must be positive")
	}
	if config.Fetcher.TransferTimeout < config.Fetcher.ConnectTimeout {
		return fmt.Errorf("fetcher.transfer_timeout must be at least fetcher.connect_timeout")
	}

	if config.Documents.Dir == "" {
		return fmt.Errorf("documents.dir is required")
	}

	for name, feature := range config.Stats.Features {
		if feature.Type == "" {
			return fmt.Errorf("stats feature %q requires a descriptor type", name)
		}
	}

	if config.TopCache.Size < 1 {
		return fmt.Errorf("top_cache.size must be at least 1")
	}

	return nil
}
