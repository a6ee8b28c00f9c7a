package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus represents the lifecycle status of a production run task
type TaskStatus int

const (
	TaskCreated TaskStatus = iota
	TaskScheduled
	TaskRunning
	TaskCompleted
)

// String method for TaskStatus enum
func (s TaskStatus) String() string {
	switch s {
	case TaskCreated:
		return "Created"
	case TaskScheduled:
		return "Scheduled"
	case TaskRunning:
		return "Running"
	case TaskCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// ProductionRunTask is one routing step executed within a production run
type ProductionRunTask struct {
	ID            TaskID
	RunID         RunID
	SequenceNum   int
	Name          string
	FixedAssetID  string
	PurposeTypeID string
	Status        TaskStatus

	EstimatedSetupMillis  int64
	EstimatedMilliSeconds int64 // per unit
	ActualSetupMillis     int64
	ActualMilliSeconds    int64

	QuantityProduced decimal.Decimal
	QuantityRejected decimal.Decimal

	ActualStartDate      *time.Time
	ActualCompletionDate *time.Time
}

// HasActualTime reports whether any actual setup or run time has been recorded
func (t *ProductionRunTask) HasActualTime() bool {
	return t.ActualSetupMillis > 0 || t.ActualMilliSeconds > 0
}

// HasDeclaredQuantity reports whether any produced or rejected quantity has been declared
func (t *ProductionRunTask) HasDeclaredQuantity() bool {
	return t.QuantityProduced.IsPositive() || t.QuantityRejected.IsPositive()
}

// EstimatedDurationMillis returns setup plus quantity times per-unit run time
func (t *ProductionRunTask) EstimatedDurationMillis(quantity decimal.Decimal) int64 {
	run := decimal.NewFromInt(t.EstimatedMilliSeconds).Mul(quantity).Round(0).IntPart()
	return t.EstimatedSetupMillis + run
}

// TaskDeclaration carries the additive deltas reported against a running task
type TaskDeclaration struct {
	SetupMillis      int64
	RunMillis        int64
	QuantityProduced decimal.Decimal
	QuantityRejected decimal.Decimal
}

// Validate rejects negative deltas
func (d TaskDeclaration) Validate() error {
	if d.SetupMillis < 0 || d.RunMillis < 0 {
		return fmt.Errorf("%w: actual time deltas cannot be negative", ErrInvalidArgument)
	}
	if d.QuantityProduced.IsNegative() || d.QuantityRejected.IsNegative() {
		return fmt.Errorf("%w: quantity deltas cannot be negative", ErrInvalidArgument)
	}
	return nil
}

// Apply accumulates the declaration into the task's actual fields
func (t *ProductionRunTask) Apply(d TaskDeclaration) {
	t.ActualSetupMillis += d.SetupMillis
	t.ActualMilliSeconds += d.RunMillis
	t.QuantityProduced = t.QuantityProduced.Add(d.QuantityProduced)
	t.QuantityRejected = t.QuantityRejected.Add(d.QuantityRejected)
}

// TaskFlags are the derived permissions of a task within its run
type TaskFlags struct {
	CanStart    bool
	CanComplete bool
	CanDeclare  bool
}
