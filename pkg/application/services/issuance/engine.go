package issuance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/infrastructure/logging"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ModeIssue   = "issue"
	ModeReserve = "reserve"
)

// RequirementSource expands a product into aggregated leaf requirements
type RequirementSource interface {
	Requirements(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, asOf time.Time) ([]dto.ComponentRequirement, error)
}

// Engine issues or reserves a run's material requirements against the inventory
// gateway. It never caches availability: every item re-reads it right before acting.
type Engine struct {
	requirements RequirementSource
	gateway      repositories.InventoryGateway
	now          func() time.Time
	logger       *slog.Logger
	metrics      metrics.Recorder
}

// Option configures an Engine
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = recorder }
}

// NewEngine creates an issuance engine
func NewEngine(requirements RequirementSource, gateway repositories.InventoryGateway, opts ...Option) *Engine {
	e := &Engine{
		requirements: requirements,
		gateway:      gateway,
		now:          time.Now,
		logger:       logging.Discard(),
		metrics:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Requirements returns the run's material requirements at its quantity to produce
func (e *Engine) Requirements(ctx context.Context, run *entities.ProductionRun) ([]entities.MaterialRequirement, error) {
	components, err := e.requirements.Requirements(ctx, run.ProductID, run.QuantityToProduce, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve requirements of run %s: %w", run.ID, err)
	}

	reqs := make([]entities.MaterialRequirement, 0, len(components))
	for _, c := range components {
		reqs = append(reqs, entities.MaterialRequirement{
			ProductID:        c.ProductID,
			FacilityID:       run.FacilityID,
			QuantityRequired: c.Quantity,
			QuantityIssued:   decimal.Zero,
		})
	}
	return reqs, nil
}

// Issue consumes up to the required quantity of each requirement not in skip.
// Shortfalls and per-item gateway failures are reported in the result; the
// returned error is reserved for failures to resolve requirements at all.
func (e *Engine) Issue(ctx context.Context, run *entities.ProductionRun, skip map[entities.ProductID]bool) (*dto.IssuanceResult, error) {
	return e.commit(ctx, run, skip, ModeIssue)
}

// Reserve places soft holds for each requirement not in skip, with the same
// partial-failure semantics as Issue
func (e *Engine) Reserve(ctx context.Context, run *entities.ProductionRun, skip map[entities.ProductID]bool) (*dto.IssuanceResult, error) {
	return e.commit(ctx, run, skip, ModeReserve)
}

func (e *Engine) commit(ctx context.Context, run *entities.ProductionRun, skip map[entities.ProductID]bool, mode string) (result *dto.IssuanceResult, err error) {
	ctx, span := tracing.Start(ctx, "issuance."+mode,
		attribute.String("run_id", string(run.ID)),
		attribute.String("facility_id", string(run.FacilityID)),
	)
	started := time.Now()
	defer func() {
		tracing.End(span, err)
		e.metrics.RecordOperation("issuance."+mode, err, time.Since(started))
	}()

	reqs, err := e.Requirements(ctx, run)
	if err != nil {
		return nil, err
	}

	result = &dto.IssuanceResult{
		RunID: run.ID,
		Mode:  mode,
	}

	var errs *multierror.Error
	for i := range reqs {
		req := &reqs[i]
		if skip[req.ProductID] {
			result.Skipped = append(result.Skipped, req.ProductID)
			continue
		}

		if err := e.commitOne(ctx, run, req, mode, result); err != nil {
			errs = multierror.Append(errs, err)
			result.Errors = append(result.Errors, err.Error())
			e.logger.Error("material "+mode+" failed",
				slog.String("run_id", string(run.ID)),
				slog.String("product_id", string(req.ProductID)),
				slog.Any("error", err))
		}
	}

	result.Requirements = reqs
	result.Err = errs.ErrorOrNil()

	e.logger.Info("materials committed",
		slog.String("run_id", string(run.ID)),
		slog.String("mode", mode),
		slog.Int("requirements", len(reqs)),
		slog.Int("shortfalls", len(result.Shortfalls)),
		slog.Int("errors", len(result.Errors)))

	return result, nil
}

func (e *Engine) commitOne(ctx context.Context, run *entities.ProductionRun, req *entities.MaterialRequirement, mode string, result *dto.IssuanceResult) error {
	available, err := e.gateway.GetAvailable(ctx, req.ProductID, req.FacilityID)
	if err != nil {
		return fmt.Errorf("failed to read availability of %s at %s: %w", req.ProductID, req.FacilityID, err)
	}

	quantity := decimal.Min(req.QuantityRequired, available)
	if quantity.IsPositive() {
		at := e.now()
		switch mode {
		case ModeIssue:
			id, err := e.gateway.Issue(ctx, req.ProductID, req.FacilityID, quantity, req.LotID)
			if err != nil {
				return fmt.Errorf("failed to issue %s of %s at %s: %w", quantity, req.ProductID, req.FacilityID, err)
			}
			result.Issued = append(result.Issued, entities.Issuance{
				ID:         id,
				ProductID:  req.ProductID,
				FacilityID: req.FacilityID,
				Quantity:   quantity,
				LotID:      req.LotID,
				CreatedAt:  at,
			})
		case ModeReserve:
			id, err := e.gateway.Reserve(ctx, req.ProductID, req.FacilityID, quantity)
			if err != nil {
				return fmt.Errorf("failed to reserve %s of %s at %s: %w", quantity, req.ProductID, req.FacilityID, err)
			}
			result.Reserved = append(result.Reserved, entities.Reservation{
				ID:         id,
				ProductID:  req.ProductID,
				FacilityID: req.FacilityID,
				Quantity:   quantity,
				CreatedAt:  at,
			})
		}
		req.QuantityIssued = quantity
	}

	if quantity.LessThan(req.QuantityRequired) {
		shortfall := entities.Shortfall{
			ProductID:  req.ProductID,
			FacilityID: req.FacilityID,
			Required:   req.QuantityRequired,
			Available:  quantity,
		}
		result.Shortfalls = append(result.Shortfalls, shortfall)
		e.logger.Warn("material shortfall",
			slog.String("run_id", string(run.ID)),
			slog.String("product_id", string(req.ProductID)),
			slog.String("facility_id", string(req.FacilityID)),
			slog.String("required", req.QuantityRequired.String()),
			slog.String("available", quantity.String()))
	}
	return nil
}

// Release drops the given reservations. It returns the ones released, including
// those the gateway no longer knows, and an aggregate of the failures.
func (e *Engine) Release(ctx context.Context, reservations []entities.Reservation) ([]entities.Reservation, error) {
	var errs *multierror.Error
	released := make([]entities.Reservation, 0, len(reservations))

	for _, res := range reservations {
		err := e.gateway.Release(ctx, res.ID)
		if err != nil && !errors.Is(err, entities.ErrNotFound) {
			errs = multierror.Append(errs, fmt.Errorf("failed to release reservation %s of %s: %w", res.ID, res.ProductID, err))
			continue
		}
		released = append(released, res)
	}

	return released, errs.ErrorOrNil()
}
