package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/interfaces/cli/output"
)

// SimulateCommand rolls up the cost of a product's bill of materials
type SimulateCommand struct {
	config Config
}

// NewSimulateCommand creates a new simulate command with the given configuration
func NewSimulateCommand(config Config) *SimulateCommand {
	return &SimulateCommand{config: config}
}

// Execute runs the cost simulation
func (c *SimulateCommand) Execute(ctx context.Context) error {
	if c.config.Help {
		fmt.Fprint(c.config.out(), usage)
		return nil
	}

	if c.config.Product == "" {
		return fmt.Errorf("validation error: must specify -product")
	}
	quantity, err := parseQuantity(c.config.Quantity)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	cfg, err := c.config.settings()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ds, err := c.config.loadDataset()
	if err != nil {
		return err
	}
	env, err := NewEnvironment(ctx, cfg, ds, logger, newRecorder(cfg))
	if err != nil {
		return err
	}

	startTime := time.Now()
	res, err := env.Resolver.Simulate(ctx, entities.ProductID(c.config.Product), quantity, cfg.Costing.Currency)
	if err != nil {
		return fmt.Errorf("error simulating cost: %w", err)
	}

	return output.WriteCost(c.config.out(), res, output.Config{
		Format:    c.config.Format,
		OutputDir: c.config.OutputDir,
		Verbose:   c.config.Verbose,
		Elapsed:   time.Since(startTime),
	})
}

func parseQuantity(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.NewFromInt(1), nil
	}
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity: %s", s)
	}
	if !q.IsPositive() {
		return decimal.Zero, fmt.Errorf("quantity must be positive, got %s", s)
	}
	return q, nil
}
