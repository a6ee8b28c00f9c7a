package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
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

// MaterialEngine issues, reserves and releases run materials
type MaterialEngine interface {
	Issue(ctx context.Context, run *entities.ProductionRun, skip map[entities.ProductID]bool) (*dto.IssuanceResult, error)
	Reserve(ctx context.Context, run *entities.ProductionRun, skip map[entities.ProductID]bool) (*dto.IssuanceResult, error)
	Release(ctx context.Context, reservations []entities.Reservation) ([]entities.Reservation, error)
}

// Service drives production runs through their routing. Transitions on the same
// run are serialized in process and guarded by the repository's version check
// across processes. A transition that touches inventory first persists a commit
// claim, so a concurrent writer is refused before it can consume stock.
type Service struct {
	products  repositories.ProductRepository
	routings  repositories.RoutingRepository
	runs      repositories.ProductionRunRepository
	materials MaterialEngine
	inventory repositories.InventoryGateway

	events   events.EventStore
	locks    *shared.KeyedMutex
	claimTTL time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// DefaultClaimTTL is how long a commit claim blocks other writers before it
// is treated as abandoned
const DefaultClaimTTL = 5 * time.Minute

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

// WithClaimTTL sets how long an unreleased commit claim blocks other writers
func WithClaimTTL(ttl time.Duration) Option {
	return func(s *Service) { s.claimTTL = ttl }
}

// WithLocks shares a keyed lock with other services operating on the same runs
func WithLocks(locks *shared.KeyedMutex) Option {
	return func(s *Service) { s.locks = locks }
}

// NewService creates a production run service
func NewService(
	products repositories.ProductRepository,
	routings repositories.RoutingRepository,
	runs repositories.ProductionRunRepository,
	materials MaterialEngine,
	inventory repositories.InventoryGateway,
	opts ...Option,
) *Service {
	s := &Service{
		products:  products,
		routings:  routings,
		runs:      runs,
		materials: materials,
		inventory: inventory,
		events:    events.NewInMemoryEventStore(),
		locks:     shared.NewKeyedMutex(),
		claimTTL:  DefaultClaimTTL,
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

// Events returns the event store the service appends to
func (s *Service) Events() events.EventStore {
	return s.events
}

// change collects the events produced by one transition
type change struct {
	run    *entities.ProductionRun
	at     time.Time
	events []events.Event

	loaded  *entities.ProductionRun
	claimed *entities.ProductionRun
}

func (c *change) emit(e events.Event) {
	c.events = append(c.events, e)
}

// persistedError is returned by a mutation that made progress worth keeping
// before failing
type persistedError struct {
	err error
}

func (e *persistedError) Error() string { return e.err.Error() }
func (e *persistedError) Unwrap() error { return e.err }

func keepProgress(err error) error {
	return &persistedError{err: err}
}

// errNoChange ends a mutation successfully without persisting anything
var errNoChange = errors.New("no change")

// mutate loads the run under its lock, applies fn and persists the result.
// Nothing is stored when fn fails, unless it wrapped its error with keepProgress.
func (s *Service) mutate(ctx context.Context, op string, runID entities.RunID, fn func(c *change) error) (run *entities.ProductionRun, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "production."+op, attribute.String("run_id", string(runID)))
	defer func() {
		tracing.End(span, err)
		s.metrics.RecordOperation(op, err, time.Since(started))
		if err != nil {
			s.logger.Debug("production operation refused",
				slog.String("operation", op),
				slog.String("run_id", string(runID)),
				slog.Any("error", err))
		}
	}()

	unlock := s.locks.Lock(string(runID))
	defer unlock()

	run, err = s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	from := run.Status

	c := &change{run: run, at: s.now(), loaded: run.Clone()}
	if run.CommitClaimed(c.at, s.claimTTL) {
		return nil, fmt.Errorf("%w: run %s has a commit in progress since %s",
			entities.ErrConcurrentUpdate, runID, run.CommitClaimedAt.Format(time.RFC3339))
	}

	fnErr := fn(c)
	if errors.Is(fnErr, errNoChange) {
		s.releaseClaim(ctx, c)
		return run, nil
	}

	var progress *persistedError
	if fnErr != nil && !errors.As(fnErr, &progress) {
		s.releaseClaim(ctx, c)
		return nil, fnErr
	}

	run.CommitClaimedAt = nil
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		if c.claimed != nil {
			s.logger.Error("inventory committed but run update was lost",
				slog.String("operation", op),
				slog.String("run_id", string(runID)),
				slog.Any("error", err))
		}
		return nil, err
	}

	if run.Status != from {
		s.metrics.RecordTransition(from.String(), run.Status.String())
		s.logger.Info("production run transitioned",
			slog.String("run_id", string(run.ID)),
			slog.String("from", from.String()),
			slog.String("to", run.Status.String()))
	}
	for _, e := range c.events {
		if err := s.events.AppendEvent(string(run.ID), e); err != nil {
			s.logger.Error("failed to append event",
				slog.String("run_id", string(run.ID)),
				slog.String("event_type", e.Type()),
				slog.Any("error", err))
		}
	}

	if progress != nil {
		return run, progress.err
	}
	return run, nil
}

// claim persists a commit claim on the run as loaded. It must be called before
// fn has side effects outside the run; a writer that lost the race fails here
// without having touched inventory.
func (s *Service) claim(ctx context.Context, c *change) error {
	if c.claimed != nil {
		return nil
	}
	claimed := c.loaded.Clone()
	claimed.CommitClaimedAt = timePtr(c.at)
	if err := s.runs.UpdateRun(ctx, claimed); err != nil {
		return err
	}
	c.claimed = claimed
	c.run.Version = claimed.Version
	c.run.CommitClaimedAt = claimed.CommitClaimedAt
	return nil
}

// releaseClaim clears a claim when fn failed or changed nothing. The run goes
// back to its loaded state.
func (s *Service) releaseClaim(ctx context.Context, c *change) {
	if c.claimed == nil {
		return
	}
	c.claimed.CommitClaimedAt = nil
	if err := s.runs.UpdateRun(ctx, c.claimed); err != nil {
		s.logger.Error("failed to release commit claim",
			slog.String("run_id", string(c.claimed.ID)),
			slog.Any("error", err))
	}
}

// mutateTask resolves the task's run and applies fn to the task within mutate
func (s *Service) mutateTask(ctx context.Context, op string, taskID entities.TaskID, fn func(c *change, task *entities.ProductionRunTask) error) (*entities.ProductionRun, error) {
	owner, err := s.runs.FindRunByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, op, owner.ID, func(c *change) error {
		task, err := c.run.Task(taskID)
		if err != nil {
			return err
		}
		return fn(c, task)
	})
}

// GetRun returns the current state of a run
func (s *Service) GetRun(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.runs.GetRun(ctx, runID)
}

// Summary returns the caller-facing view of a run with its derived task flags
func (s *Service) Summary(ctx context.Context, runID entities.RunID) (dto.RunSummary, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return dto.RunSummary{}, err
	}
	return dto.SummarizeRun(run), nil
}

// TaskFlags returns the derived permissions of a task
func (s *Service) TaskFlags(ctx context.Context, taskID entities.TaskID) (entities.TaskFlags, error) {
	run, err := s.runs.FindRunByTask(ctx, taskID)
	if err != nil {
		return entities.TaskFlags{}, err
	}
	return run.Flags(taskID), nil
}
