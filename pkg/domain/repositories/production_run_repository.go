package repositories

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// ProductionRunRepository persists production runs together with their tasks and
// material records.
type ProductionRunRepository interface {
	CreateRun(ctx context.Context, run *entities.ProductionRun) error
	GetRun(ctx context.Context, id entities.RunID) (*entities.ProductionRun, error)
	// FindRunByTask returns the run owning the task.
	FindRunByTask(ctx context.Context, taskID entities.TaskID) (*entities.ProductionRun, error)
	// UpdateRun stores the run if its Version still matches the stored one and
	// increments Version; otherwise it fails with entities.ErrConcurrentUpdate.
	UpdateRun(ctx context.Context, run *entities.ProductionRun) error
}

// WipLedgerRepository stores WIP consumption entries per main production run
type WipLedgerRepository interface {
	// AppendWithinCapacity appends the entry only if the run's total consumption,
	// including the entry, stays within capacity. It re-reads consumption under its
	// own lock/transaction and fails with a *entities.WipCapacityError otherwise.
	AppendWithinCapacity(ctx context.Context, entry *entities.WipLedgerEntry, capacity decimal.Decimal) error
	ListEntries(ctx context.Context, mainRunID entities.RunID) ([]*entities.WipLedgerEntry, error)
	RemoveEntry(ctx context.Context, id string) error
}
