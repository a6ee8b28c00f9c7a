package wip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/application/services/shared"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/infrastructure/events"
	"github.com/vsinha/mes/pkg/infrastructure/logging"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// DeclareRequest declares finished units produced out of a main run's WIP pool
type DeclareRequest struct {
	MainRunID         entities.RunID
	FinishedProductID entities.ProductID
	FacilityID        entities.FacilityID // defaults to the main run's facility
	Quantity          decimal.Decimal
	LotID             string
}

// Service accounts for WIP consumed from main production runs
type Service struct {
	runs      repositories.ProductionRunRepository
	boms      repositories.BOMRepository
	ledger    repositories.WipLedgerRepository
	inventory repositories.InventoryGateway

	events  events.EventStore
	locks   *shared.KeyedMutex
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics metrics.Recorder
}

// Option configures a Service
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

func WithEventStore(store events.EventStore) Option {
	return func(s *Service) { s.events = store }
}

func WithLocks(locks *shared.KeyedMutex) Option {
	return func(s *Service) { s.locks = locks }
}

// NewService creates a WIP accounting service
func NewService(
	runs repositories.ProductionRunRepository,
	boms repositories.BOMRepository,
	ledger repositories.WipLedgerRepository,
	inventory repositories.InventoryGateway,
	opts ...Option,
) *Service {
	s := &Service{
		runs:      runs,
		boms:      boms,
		ledger:    ledger,
		inventory: inventory,
		events:    events.NewInMemoryEventStore(),
		locks:     shared.NewKeyedMutex(),
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logging.Discard(),
		metrics:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeclareAndProduce consumes quantity x wipPerUnit from the main run's WIP pool and
// adds the finished units to inventory. Either both happen or neither does.
func (s *Service) DeclareAndProduce(ctx context.Context, req DeclareRequest) (result *dto.DeclareResult, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "wip.declare_and_produce",
		attribute.String("main_run_id", string(req.MainRunID)),
		attribute.String("finished_product_id", string(req.FinishedProductID)),
		attribute.String("quantity", req.Quantity.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.RecordOperation("declare_and_produce", err, time.Since(started))
	}()

	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: declared quantity must be positive, got %s", entities.ErrInvalidArgument, req.Quantity)
	}
	if req.FinishedProductID == "" {
		return nil, fmt.Errorf("%w: finished product is required", entities.ErrInvalidArgument)
	}

	unlock := s.locks.Lock(string(req.MainRunID))
	defer unlock()

	run, err := s.runs.GetRun(ctx, req.MainRunID)
	if err != nil {
		return nil, err
	}
	if run.Status != entities.RunRunning && run.Status != entities.RunCompleted {
		return nil, &entities.TransitionError{
			RunID:  run.ID,
			Action: "declare wip from",
			Status: run.Status.String(),
			Reason: "main run must be Running or Completed",
		}
	}

	now := s.now()
	wipPerUnit, err := s.wipPerUnit(ctx, req.FinishedProductID, run.ProductID, now)
	if err != nil {
		return nil, err
	}

	facility := req.FacilityID
	if facility == "" {
		facility = run.FacilityID
	}
	entry, err := entities.NewWipLedgerEntry(s.newID(), run.ID, req.FinishedProductID, facility, req.LotID, wipPerUnit, req.Quantity, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidArgument, err)
	}

	if err := s.ledger.AppendWithinCapacity(ctx, entry, run.WipCapacity); err != nil {
		return nil, err
	}

	if err := s.inventory.AddStock(ctx, req.FinishedProductID, facility, req.Quantity, req.LotID); err != nil {
		stockErr := fmt.Errorf("add %s of %s to inventory: %w", req.Quantity, req.FinishedProductID, err)
		if rmErr := s.ledger.RemoveEntry(ctx, entry.ID); rmErr != nil {
			s.logger.Error("failed to compensate wip ledger entry",
				slog.String("entry_id", entry.ID),
				slog.String("main_run_id", string(run.ID)),
				slog.Any("error", rmErr))
			return nil, multierror.Append(stockErr, fmt.Errorf("remove wip ledger entry %s: %w", entry.ID, rmErr))
		}
		return nil, stockErr
	}

	entries, err := s.ledger.ListEntries(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	result = &dto.DeclareResult{
		Entry:        *entry,
		RequiredWip:  entry.WipConsumed(),
		RemainingWip: run.WipAvailable(entities.SumWipConsumed(entries)),
	}

	if err := s.events.AppendEvent(string(run.ID), events.NewWipDeclaredEvent(*entry)); err != nil {
		s.logger.Error("failed to append event", slog.String("run_id", string(run.ID)), slog.Any("error", err))
	}
	consumed, _ := result.RequiredWip.Float64()
	s.metrics.RecordWipDeclared(string(req.FinishedProductID), consumed)
	s.logger.Info("wip declared",
		slog.String("main_run_id", string(run.ID)),
		slog.String("finished_product_id", string(req.FinishedProductID)),
		slog.String("quantity", req.Quantity.String()),
		slog.String("wip_consumed", result.RequiredWip.String()),
		slog.String("wip_remaining", result.RemainingWip.String()))

	return result, nil
}

// wipPerUnit returns the quantity per unit of the finished product's link to the WIP product
func (s *Service) wipPerUnit(ctx context.Context, finished, wipProduct entities.ProductID, asOf time.Time) (decimal.Decimal, error) {
	links, err := s.boms.GetBomLinks(ctx, finished, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	for _, link := range links {
		if link.ChildProductID == wipProduct {
			return link.QuantityPerUnit, nil
		}
	}
	return decimal.Zero, entities.NewNotFound("wip bom link", fmt.Sprintf("%s -> %s", finished, wipProduct))
}

// Balance reports the WIP pool of a main run
func (s *Service) Balance(ctx context.Context, mainRunID entities.RunID) (dto.WipBalance, error) {
	run, err := s.runs.GetRun(ctx, mainRunID)
	if err != nil {
		return dto.WipBalance{}, err
	}
	entries, err := s.ledger.ListEntries(ctx, mainRunID)
	if err != nil {
		return dto.WipBalance{}, err
	}
	consumed := entities.SumWipConsumed(entries)
	return dto.WipBalance{
		MainRunID: run.ID,
		Capacity:  run.WipCapacity,
		Consumed:  consumed,
		Available: run.WipAvailable(consumed),
		Entries:   len(entries),
	}, nil
}
