package sql

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options configures the sqlite store. They are decoded from the store
// properties of the configuration file.
type Options struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	LogLevel               string `mapstructure:"log_level"` // silent | error | warn | info
}

// DefaultOptions returns options for a private in-memory database. A single
// connection keeps the database alive and serializes writers.
func DefaultOptions() Options {
	return Options{
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}
}

// OptionsFromProperties decodes raw store properties over the defaults.
// String values are accepted for numeric fields so environment overrides work.
func OptionsFromProperties(props map[string]interface{}) (Options, error) {
	opts := DefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(props); err != nil {
		return Options{}, fmt.Errorf("failed to decode sqlite store properties: %w", err)
	}
	if opts.DSN == "" {
		return Options{}, fmt.Errorf("sqlite store dsn cannot be empty")
	}
	return opts, nil
}

// Open connects to the database and migrates the schema
func Open(opts Options) (*gorm.DB, error) {
	level, err := parseLogLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(opts.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(opts.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the store tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&runRecord{}, &taskRecord{}, &materialRecord{}, &wipLedgerRecord{}); err != nil {
		return fmt.Errorf("failed to migrate store schema: %w", err)
	}
	return nil
}

func parseLogLevel(level string) (logger.LogLevel, error) {
	switch level {
	case "", "silent":
		return logger.Silent, nil
	case "error":
		return logger.Error, nil
	case "warn":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	default:
		return logger.Silent, fmt.Errorf("invalid sqlite log level: %s", level)
	}
}
