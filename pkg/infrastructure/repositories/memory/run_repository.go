package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

// ProductionRunRepository keeps deep copies of runs so callers never share state
type ProductionRunRepository struct {
	mu        sync.RWMutex
	runs      map[entities.RunID]*entities.ProductionRun
	taskIndex map[entities.TaskID]entities.RunID
}

// NewProductionRunRepository creates an in-memory run repository
func NewProductionRunRepository() *ProductionRunRepository {
	return &ProductionRunRepository{
		runs:      make(map[entities.RunID]*entities.ProductionRun),
		taskIndex: make(map[entities.TaskID]entities.RunID),
	}
}

// Verify interface compliance
var _ repositories.ProductionRunRepository = (*ProductionRunRepository)(nil)

// CreateRun stores a new run
func (r *ProductionRunRepository) CreateRun(_ context.Context, run *entities.ProductionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("production run already exists: %s", run.ID)
	}
	for _, task := range run.Tasks {
		if _, exists := r.taskIndex[task.ID]; exists {
			return fmt.Errorf("task already exists: %s", task.ID)
		}
	}

	r.runs[run.ID] = run.Clone()
	for _, task := range run.Tasks {
		r.taskIndex[task.ID] = run.ID
	}
	return nil
}

// GetRun returns a copy of the stored run
func (r *ProductionRunRepository) GetRun(_ context.Context, id entities.RunID) (*entities.ProductionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, entities.NewNotFound("production run", string(id))
	}
	return run.Clone(), nil
}

// FindRunByTask returns a copy of the run owning the task
func (r *ProductionRunRepository) FindRunByTask(ctx context.Context, taskID entities.TaskID) (*entities.ProductionRun, error) {
	r.mu.RLock()
	runID, exists := r.taskIndex[taskID]
	r.mu.RUnlock()

	if !exists {
		return nil, entities.NewNotFound("task", string(taskID))
	}
	return r.GetRun(ctx, runID)
}

// UpdateRun replaces the stored run when versions match and bumps the version
// on both the stored copy and the caller's run
func (r *ProductionRunRepository) UpdateRun(_ context.Context, run *entities.ProductionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.runs[run.ID]
	if !exists {
		return entities.NewNotFound("production run", string(run.ID))
	}
	if stored.Version != run.Version {
		return fmt.Errorf("%w: run %s is at version %d, update was based on %d",
			entities.ErrConcurrentUpdate, run.ID, stored.Version, run.Version)
	}

	run.Version++
	r.runs[run.ID] = run.Clone()
	return nil
}
