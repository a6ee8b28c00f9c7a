package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vsinha/mes/pkg/application/services/bom"
	"github.com/vsinha/mes/pkg/application/services/issuance"
	"github.com/vsinha/mes/pkg/application/services/production"
	"github.com/vsinha/mes/pkg/application/services/shared"
	"github.com/vsinha/mes/pkg/application/services/wip"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/infrastructure/config"
	"github.com/vsinha/mes/pkg/infrastructure/events"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/memory"
	sqlstore "github.com/vsinha/mes/pkg/infrastructure/repositories/sql"
)

// Environment is the wired execution core for one loaded scenario
type Environment struct {
	Products  *memory.ProductRepository
	BOMs      *memory.BOMRepository
	Prices    *memory.PriceRepository
	Routings  *memory.RoutingRepository
	Inventory *memory.InventoryLedger
	Runs      repositories.ProductionRunRepository
	WipLedger repositories.WipLedgerRepository
	Events    *events.InMemoryEventStore

	Resolver   *bom.Resolver
	Engine     *issuance.Engine
	Production *production.Service
	Wip        *wip.Service
}

// NewEnvironment loads the dataset into memory repositories, validates the BOM and
// wires the services over the configured run store.
func NewEnvironment(ctx context.Context, cfg *config.Config, ds *csv.Dataset, logger *slog.Logger, recorder metrics.Recorder) (*Environment, error) {
	env := &Environment{
		Products:  memory.NewProductRepository(len(ds.Products)),
		BOMs:      memory.NewBOMRepository(len(ds.Links)),
		Prices:    memory.NewPriceRepository(),
		Routings:  memory.NewRoutingRepository(),
		Inventory: memory.NewInventoryLedger(),
		Events:    events.NewInMemoryEventStoreWithLogger(logger),
	}

	env.Events.Subscribe(events.LogHandler(logger))

	if err := env.Products.LoadProducts(ds.Products); err != nil {
		return nil, fmt.Errorf("failed to load products into repository: %w", err)
	}
	if err := env.BOMs.LoadBomLinks(ds.Links); err != nil {
		return nil, fmt.Errorf("failed to load BOM links into repository: %w", err)
	}
	if err := env.Prices.LoadUnitCosts(ds.Costs); err != nil {
		return nil, fmt.Errorf("failed to load unit costs into repository: %w", err)
	}
	if err := env.Routings.LoadRoutings(ds.Routings); err != nil {
		return nil, fmt.Errorf("failed to load routings into repository: %w", err)
	}
	if err := env.Inventory.LoadInventoryLots(ds.Lots); err != nil {
		return nil, fmt.Errorf("failed to load inventory into ledger: %w", err)
	}

	if err := env.BOMs.Validate(ctx).Err(); err != nil {
		return nil, fmt.Errorf("BOM validation failed: %w", err)
	}

	if err := env.openStore(cfg); err != nil {
		return nil, err
	}

	policy, err := bom.ParseMissingCostPolicy(cfg.Costing.MissingCostPolicy)
	if err != nil {
		return nil, err
	}
	env.Resolver = bom.NewResolver(env.Products, env.BOMs, env.Prices,
		bom.WithCurrency(cfg.Costing.Currency),
		bom.WithMissingCostPolicy(policy),
		bom.WithLogger(logger),
	)
	env.Engine = issuance.NewEngine(env.Resolver, env.Inventory,
		issuance.WithLogger(logger),
		issuance.WithMetrics(recorder),
	)

	locks := shared.NewKeyedMutex()
	env.Production = production.NewService(env.Products, env.Routings, env.Runs, env.Engine, env.Inventory,
		production.WithLogger(logger),
		production.WithMetrics(recorder),
		production.WithEventStore(env.Events),
		production.WithLocks(locks),
	)
	env.Wip = wip.NewService(env.Runs, env.BOMs, env.WipLedger, env.Inventory,
		wip.WithLogger(logger),
		wip.WithMetrics(recorder),
		wip.WithEventStore(env.Events),
		wip.WithLocks(locks),
	)
	return env, nil
}

func (e *Environment) openStore(cfg *config.Config) error {
	switch strings.ToLower(cfg.Store.Type) {
	case "memory":
		e.Runs = memory.NewProductionRunRepository()
		e.WipLedger = memory.NewWipLedgerRepository()
	case "sqlite":
		opts, err := sqlstore.OptionsFromProperties(cfg.Store.Properties)
		if err != nil {
			return err
		}
		db, err := sqlstore.Open(opts)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		e.Runs = sqlstore.NewProductionRunRepository(db)
		e.WipLedger = sqlstore.NewWipLedgerRepository(db)
	default:
		return fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
	return nil
}
