package sql

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"gorm.io/gorm"
)

// WipLedgerRepository stores WIP consumption entries
type WipLedgerRepository struct {
	db *gorm.DB
}

var _ repositories.WipLedgerRepository = (*WipLedgerRepository)(nil)

// NewWipLedgerRepository creates a ledger over a migrated database
func NewWipLedgerRepository(db *gorm.DB) *WipLedgerRepository {
	return &WipLedgerRepository{db: db}
}

// AppendWithinCapacity inserts the entry first so the transaction holds the
// write lock, then re-reads the run's consumption and rolls back if the
// capacity is exceeded.
func (r *WipLedgerRepository) AppendWithinCapacity(ctx context.Context, entry *entities.WipLedgerEntry, capacity decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fromDomainWipEntry(entry)).Error; err != nil {
			return fmt.Errorf("failed to append wip ledger entry %s: %w", entry.ID, err)
		}

		var records []wipLedgerRecord
		if err := tx.Where("main_run_id = ?", string(entry.MainRunID)).Find(&records).Error; err != nil {
			return fmt.Errorf("failed to read wip consumption of run %s: %w", entry.MainRunID, err)
		}
		consumed := decimal.Zero
		for i := range records {
			consumed = consumed.Add(toDomainWipEntry(&records[i]).WipConsumed())
		}

		if consumed.GreaterThan(capacity) {
			required := entry.WipConsumed()
			available := capacity.Sub(consumed.Sub(required))
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
		return nil
	})
}

func (r *WipLedgerRepository) ListEntries(ctx context.Context, mainRunID entities.RunID) ([]*entities.WipLedgerEntry, error) {
	var records []wipLedgerRecord
	err := r.db.WithContext(ctx).
		Where("main_run_id = ?", string(mainRunID)).
		Order("timestamp, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list wip ledger of run %s: %w", mainRunID, err)
	}

	entries := make([]*entities.WipLedgerEntry, 0, len(records))
	for i := range records {
		entries = append(entries, toDomainWipEntry(&records[i]))
	}
	return entries, nil
}

func (r *WipLedgerRepository) RemoveEntry(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&wipLedgerRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove wip ledger entry %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return entities.NewNotFound("wip ledger entry", id)
	}
	return nil
}
