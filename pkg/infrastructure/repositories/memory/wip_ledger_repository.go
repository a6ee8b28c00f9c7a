package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

// WipLedgerRepository stores WIP ledger entries per main run
type WipLedgerRepository struct {
	mu      sync.Mutex
	entries map[entities.RunID][]entities.WipLedgerEntry
}

// NewWipLedgerRepository creates an in-memory WIP ledger
func NewWipLedgerRepository() *WipLedgerRepository {
	return &WipLedgerRepository{
		entries: make(map[entities.RunID][]entities.WipLedgerEntry),
	}
}

// Verify interface compliance
var _ repositories.WipLedgerRepository = (*WipLedgerRepository)(nil)

// AppendWithinCapacity appends the entry if consumption stays within capacity
func (r *WipLedgerRepository) AppendWithinCapacity(_ context.Context, entry *entities.WipLedgerEntry, capacity decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumed := decimal.Zero
	for _, e := range r.entries[entry.MainRunID] {
		if e.ID == entry.ID {
			return fmt.Errorf("wip ledger entry already exists: %s", entry.ID)
		}
		consumed = consumed.Add(e.WipConsumed())
	}

	required := entry.WipConsumed()
	available := capacity.Sub(consumed)
	if required.GreaterThan(available) {
		if available.IsNegative() {
			available = decimal.Zero
		}
		return &entities.WipCapacityError{
			MainRunID:         entry.MainRunID,
			FinishedProductID: entry.FinishedProductID,
			Required:          required,
			Available:         available,
		}
	}

	r.entries[entry.MainRunID] = append(r.entries[entry.MainRunID], *entry)
	return nil
}

// ListEntries returns the entries of a main run in append order
func (r *WipLedgerRepository) ListEntries(_ context.Context, mainRunID entities.RunID) ([]*entities.WipLedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.entries[mainRunID]
	entries := make([]*entities.WipLedgerEntry, 0, len(stored))
	for i := range stored {
		e := stored[i]
		entries = append(entries, &e)
	}
	return entries, nil
}

// RemoveEntry deletes an entry by id
func (r *WipLedgerRepository) RemoveEntry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for runID, stored := range r.entries {
		for i, e := range stored {
			if e.ID == id {
				r.entries[runID] = append(stored[:i:i], stored[i+1:]...)
				return nil
			}
		}
	}
	return entities.NewNotFound("wip ledger entry", id)
}
