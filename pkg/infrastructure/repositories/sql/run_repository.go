package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"gorm.io/gorm"
)

// ProductionRunRepository persists runs with their tasks and material records in
// one transaction per call
type ProductionRunRepository struct {
	db *gorm.DB
}

var _ repositories.ProductionRunRepository = (*ProductionRunRepository)(nil)

// NewProductionRunRepository creates a repository over a migrated database
func NewProductionRunRepository(db *gorm.DB) *ProductionRunRepository {
	return &ProductionRunRepository{db: db}
}

func (r *ProductionRunRepository) CreateRun(ctx context.Context, run *entities.ProductionRun) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&runRecord{}).Where("id = ?", string(run.ID)).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check production run %s: %w", run.ID, err)
		}
		if count > 0 {
			return fmt.Errorf("production run already exists: %s", run.ID)
		}

		if err := tx.Create(fromDomainRun(run)).Error; err != nil {
			return fmt.Errorf("failed to create production run %s: %w", run.ID, err)
		}
		return r.writeChildren(tx, run)
	})
}

func (r *ProductionRunRepository) GetRun(ctx context.Context, id entities.RunID) (*entities.ProductionRun, error) {
	return r.load(r.db.WithContext(ctx), string(id))
}

func (r *ProductionRunRepository) FindRunByTask(ctx context.Context, taskID entities.TaskID) (*entities.ProductionRun, error) {
	db := r.db.WithContext(ctx)
	var task taskRecord
	if err := db.Where("id = ?", string(taskID)).Take(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entities.NewNotFound("task", string(taskID))
		}
		return nil, fmt.Errorf("failed to find task %s: %w", taskID, err)
	}
	return r.load(db, task.RunID)
}

// UpdateRun writes the run only where the stored version matches and bumps it
func (r *ProductionRunRepository) UpdateRun(ctx context.Context, run *entities.ProductionRun) error {
	originalVersion := run.Version
	run.Version++

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := fromDomainRun(run)
		result := tx.Model(&runRecord{}).
			Where("id = ? AND version = ?", rec.ID, originalVersion).
			Select("*").
			Updates(rec)
		if result.Error != nil {
			return fmt.Errorf("failed to update production run %s: %w", run.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&runRecord{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return entities.NewNotFound("production run", rec.ID)
			}
			return fmt.Errorf("%w: run %s with version %d not found for update",
				entities.ErrConcurrentUpdate, run.ID, originalVersion)
		}

		if err := tx.Where("run_id = ?", rec.ID).Delete(&taskRecord{}).Error; err != nil {
			return fmt.Errorf("failed to replace tasks of run %s: %w", run.ID, err)
		}
		if err := tx.Where("run_id = ?", rec.ID).Delete(&materialRecord{}).Error; err != nil {
			return fmt.Errorf("failed to replace materials of run %s: %w", run.ID, err)
		}
		return r.writeChildren(tx, run)
	})
	if err != nil {
		run.Version = originalVersion
		return err
	}
	return nil
}

func (r *ProductionRunRepository) writeChildren(tx *gorm.DB, run *entities.ProductionRun) error {
	if tasks := fromDomainTasks(run); len(tasks) > 0 {
		if err := tx.Create(&tasks).Error; err != nil {
			return fmt.Errorf("failed to write tasks of run %s: %w", run.ID, err)
		}
	}
	if materials := fromDomainMaterials(run); len(materials) > 0 {
		if err := tx.Create(&materials).Error; err != nil {
			return fmt.Errorf("failed to write materials of run %s: %w", run.ID, err)
		}
	}
	return nil
}

func (r *ProductionRunRepository) load(db *gorm.DB, id string) (*entities.ProductionRun, error) {
	var rec runRecord
	if err := db.Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entities.NewNotFound("production run", id)
		}
		return nil, fmt.Errorf("failed to load production run %s: %w", id, err)
	}

	var tasks []taskRecord
	if err := db.Where("run_id = ?", id).Order("sequence_num").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load tasks of run %s: %w", id, err)
	}
	var materials []materialRecord
	if err := db.Where("run_id = ?", id).Order("seq").Find(&materials).Error; err != nil {
		return nil, fmt.Errorf("failed to load materials of run %s: %w", id, err)
	}

	return toDomainRun(&rec, tasks, materials), nil
}
