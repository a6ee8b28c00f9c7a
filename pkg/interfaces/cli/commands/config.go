package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vsinha/mes/pkg/infrastructure/config"
	"github.com/vsinha/mes/pkg/infrastructure/logging"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/csv"
)

// Config holds the flags shared by the CLI commands
type Config struct {
	ScenarioDir string
	ConfigFile  string
	EnvFile     string
	Product     string
	Quantity    string
	Currency    string
	Facility    string
	Routing     string
	Reserve     bool
	Declare     string
	MetricsFile string
	Format      string
	OutputDir   string
	Verbose     bool
	Help        bool

	// Out receives the rendered results; stdout when nil
	Out io.Writer
}

func (c Config) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// settings loads the layered configuration and applies the flag overrides
func (c Config) settings() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile, c.EnvFile)
	if err != nil {
		return nil, err
	}
	if c.Facility != "" {
		cfg.Facility = c.Facility
	}
	if c.Currency != "" {
		cfg.Costing.Currency = c.Currency
	}
	if c.Verbose {
		cfg.Logging.Level = "debug"
	}
	if c.MetricsFile != "" {
		cfg.Metrics.Enabled = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func newRecorder(cfg *config.Config) metrics.Recorder {
	if cfg.Metrics.Enabled {
		return metrics.NewPrometheusRecorder()
	}
	return metrics.NoopRecorder{}
}

func (c Config) loadDataset() (*csv.Dataset, error) {
	if c.ScenarioDir == "" {
		return nil, fmt.Errorf("must specify -scenario directory")
	}
	ds, err := csv.NewLoader().LoadDirectory(c.ScenarioDir)
	if err != nil {
		return nil, fmt.Errorf("error loading scenario: %w", err)
	}
	return ds, nil
}
