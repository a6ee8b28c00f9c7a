package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Error categories. Detail-carrying errors below match these through errors.Is.
var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrCycleDetected         = errors.New("bom cycle detected")
	ErrMissingCost           = errors.New("missing cost")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInsufficientWip       = errors.New("insufficient wip")
	ErrNotFound              = errors.New("not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrConcurrentUpdate      = errors.New("concurrent update")
)

// TransitionError reports a guard violation on a run or task
type TransitionError struct {
	RunID  RunID
	TaskID TaskID // empty for run-level actions
	Action string
	Status string
	Reason string
}

func (e *TransitionError) Error() string {
	target := fmt.Sprintf("run %s", e.RunID)
	if e.TaskID != "" {
		target = fmt.Sprintf("task %s of run %s", e.TaskID, e.RunID)
	}
	return fmt.Sprintf("cannot %s %s (status %s): %s", e.Action, target, e.Status, e.Reason)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// CycleError carries the ancestor path that closes a BOM cycle
type CycleError struct {
	Path []ProductID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = string(p)
	}
	return fmt.Sprintf("bom cycle detected: %s", strings.Join(parts, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// MissingCostError reports a leaf product without a resolvable price
type MissingCostError struct {
	ProductID  ProductID
	CurrencyID string
	AsOf       time.Time
}

func (e *MissingCostError) Error() string {
	return fmt.Sprintf("no %s cost for product %s as of %s",
		e.CurrencyID, e.ProductID, e.AsOf.Format(time.RFC3339))
}

func (e *MissingCostError) Is(target error) bool { return target == ErrMissingCost }

// WipCapacityError reports a declaration that would exceed the WIP pool of a run
type WipCapacityError struct {
	MainRunID         RunID
	FinishedProductID ProductID
	Required          decimal.Decimal
	Available         decimal.Decimal
}

func (e *WipCapacityError) Error() string {
	return fmt.Sprintf("insufficient wip on run %s for product %s: required %s, available %s",
		e.MainRunID, e.FinishedProductID, e.Required, e.Available)
}

func (e *WipCapacityError) Is(target error) bool { return target == ErrInsufficientWip }

// NotFoundError reports an unknown identifier
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound creates a NotFoundError
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
