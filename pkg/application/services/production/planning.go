package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/events"
	"github.com/vsinha/mes/pkg/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// CreateRunRequest describes a production run to create
type CreateRunRequest struct {
	RunID              entities.RunID // generated when empty
	ProductID          entities.ProductID
	Quantity           decimal.Decimal
	FacilityID         entities.FacilityID
	RoutingID          entities.RoutingID
	EstimatedStartDate time.Time // defaults to now
	LotID              string
}

// CreateRun instantiates one task per routing task and computes the estimated completion date
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (run *entities.ProductionRun, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "production.create_run",
		attribute.String("product_id", string(req.ProductID)),
		attribute.String("quantity", req.Quantity.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.RecordOperation("create_run", err, time.Since(started))
	}()

	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity to produce must be positive, got %s", entities.ErrInvalidArgument, req.Quantity)
	}
	if req.FacilityID == "" {
		return nil, fmt.Errorf("%w: facility is required", entities.ErrInvalidArgument)
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	routing, err := s.routings.GetRouting(ctx, req.RoutingID)
	if err != nil {
		return nil, err
	}

	id := req.RunID
	if id == "" {
		id = entities.RunID(s.newID())
	}
	start := req.EstimatedStartDate
	now := s.now()
	if start.IsZero() {
		start = now
	}

	run, err = entities.NewProductionRun(id, product, req.Quantity, req.FacilityID, routing, start,
		func() entities.TaskID { return entities.TaskID(s.newID()) })
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidArgument, err)
	}
	run.LotID = req.LotID
	run.CreatedAt = now

	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.events.AppendEvent(string(run.ID), events.NewRunTransitionedEvent(events.RunCreatedEvent, run, entities.RunCreated, now)); err != nil {
		s.logger.Error("failed to append event", slog.String("run_id", string(run.ID)), slog.Any("error", err))
	}
	s.logger.Info("production run created",
		slog.String("run_id", string(run.ID)),
		slog.String("product_id", string(run.ProductID)),
		slog.String("quantity", run.QuantityToProduce.String()),
		slog.Int("tasks", len(run.Tasks)),
		slog.Time("estimated_completion", run.EstimatedCompletionDate))

	return run, nil
}

// ScheduleRun moves a created run and its tasks to Scheduled
func (s *Service) ScheduleRun(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "schedule_run", runID, func(c *change) error {
		if err := c.run.CanSchedule(); err != nil {
			return err
		}
		from := c.run.Status
		c.run.Status = entities.RunScheduled
		for _, task := range c.run.Tasks {
			task.Status = entities.TaskScheduled
		}
		c.emit(events.NewRunTransitionedEvent(events.RunScheduledEvent, c.run, from, c.at))
		return nil
	})
}

// ConfirmRun moves a scheduled run to Confirmed
func (s *Service) ConfirmRun(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "confirm_run", runID, func(c *change) error {
		if err := c.run.CanConfirm(); err != nil {
			return err
		}
		from := c.run.Status
		c.run.Status = entities.RunConfirmed
		c.emit(events.NewRunTransitionedEvent(events.RunConfirmedEvent, c.run, from, c.at))
		return nil
	})
}

// RescheduleRun moves the estimated start of a run that has not started
func (s *Service) RescheduleRun(ctx context.Context, runID entities.RunID, start time.Time) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "reschedule_run", runID, func(c *change) error {
		if start.IsZero() {
			return fmt.Errorf("%w: estimated start date is required", entities.ErrInvalidArgument)
		}
		if err := c.run.CanReschedule(); err != nil {
			return err
		}
		c.run.EstimatedStartDate = start
		c.run.RecomputeEstimatedCompletion()
		c.emit(events.NewRunTransitionedEvent(events.RunRescheduledEvent, c.run, c.run.Status, c.at))
		return nil
	})
}

// UpdateTaskEstimates replaces a task's estimates and recomputes the run's estimated completion
func (s *Service) UpdateTaskEstimates(ctx context.Context, taskID entities.TaskID, setupMillis, runMillisPerUnit int64) (*entities.ProductionRun, error) {
	return s.mutateTask(ctx, "update_task_estimates", taskID, func(c *change, task *entities.ProductionRunTask) error {
		if setupMillis < 0 || runMillisPerUnit < 0 {
			return fmt.Errorf("%w: estimates cannot be negative", entities.ErrInvalidArgument)
		}
		if err := c.run.CanUpdateTaskEstimates(taskID); err != nil {
			return err
		}
		task.EstimatedSetupMillis = setupMillis
		task.EstimatedMilliSeconds = runMillisPerUnit
		c.run.RecomputeEstimatedCompletion()
		c.emit(events.NewTaskTransitionedEvent(events.TaskEstimatesUpdatedEvent, task, entities.TaskDeclaration{}, c.at))
		return nil
	})
}
