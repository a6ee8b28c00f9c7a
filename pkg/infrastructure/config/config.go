package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MES_"

// Config holds the settings of the execution core and its CLI
type Config struct {
	Facility string        `yaml:"facility"`
	Store    StoreConfig   `yaml:"store"`
	Costing  CostingConfig `yaml:"costing"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects the run/task/WIP store. Properties are decoded by the
// selected store implementation.
type StoreConfig struct {
	Type       string                 `yaml:"type"` // memory | sqlite
	Properties map[string]interface{} `yaml:"properties"`
}

// CostingConfig controls BOM cost resolution
type CostingConfig struct {
	Currency          string `yaml:"currency"`
	MissingCostPolicy string `yaml:"missing_cost_policy"` // fail | zero
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewConfig returns the defaults
func NewConfig() *Config {
	return &Config{
		Facility: "MAIN",
		Store: StoreConfig{
			Type:       "memory",
			Properties: map[string]interface{}{},
		},
		Costing: CostingConfig{
			Currency:          "USD",
			MissingCostPolicy: "fail",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an optional
// .env file and MES_* environment variables, in that order of precedence.
func Load(configPath, envFilePath string) (*Config, error) {
	var data []byte
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFilePath, err)
		}
	} else {
		// a missing default .env is fine
		_ = godotenv.Load()
	}

	return LoadBytes(data, os.LookupEnv)
}

// LoadBytes builds the configuration from YAML bytes and an environment lookup
func LoadBytes(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := NewConfig()

	if len(data) > 0 {
		var yamlConfig Config
		if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		mergeConfig(cfg, &yamlConfig)
	}

	if err := applyEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfig copies the non-zero values of source into dest
func mergeConfig(dest, source *Config) {
	if source.Facility != "" {
		dest.Facility = source.Facility
	}
	if source.Store.Type != "" {
		dest.Store.Type = source.Store.Type
	}
	for key, value := range source.Store.Properties {
		dest.Store.Properties[key] = value
	}
	if source.Costing.Currency != "" {
		dest.Costing.Currency = source.Costing.Currency
	}
	if source.Costing.MissingCostPolicy != "" {
		dest.Costing.MissingCostPolicy = source.Costing.MissingCostPolicy
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
	if source.Logging.Format != "" {
		dest.Logging.Format = source.Logging.Format
	}
	if source.Metrics.Enabled {
		dest.Metrics.Enabled = true
	}
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	str := func(name string, target *string) {
		if v, ok := lookupEnv(envPrefix + name); ok && v != "" {
			*target = v
		}
	}

	str("FACILITY", &cfg.Facility)
	str("STORE_TYPE", &cfg.Store.Type)
	str("CURRENCY", &cfg.Costing.Currency)
	str("MISSING_COST_POLICY", &cfg.Costing.MissingCostPolicy)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookupEnv(envPrefix + "STORE_DSN"); ok && v != "" {
		cfg.Store.Properties["dsn"] = v
	}
	if v, ok := lookupEnv(envPrefix + "METRICS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS_ENABLED %q: %w", envPrefix, v, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Type) {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}
	switch strings.ToLower(c.Costing.MissingCostPolicy) {
	case "fail", "zero":
	default:
		return fmt.Errorf("unsupported missing cost policy: %s", c.Costing.MissingCostPolicy)
	}
	if c.Costing.Currency == "" {
		return fmt.Errorf("costing currency cannot be empty")
	}
	if c.Facility == "" {
		return fmt.Errorf("facility cannot be empty")
	}
	return nil
}
