package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

// RoutingRepository provides in-memory routing storage
type RoutingRepository struct {
	mu       sync.RWMutex
	routings map[entities.RoutingID]entities.Routing
}

// NewRoutingRepository creates an in-memory routing repository
func NewRoutingRepository() *RoutingRepository {
	return &RoutingRepository{
		routings: make(map[entities.RoutingID]entities.Routing),
	}
}

// Verify interface compliance
var _ repositories.RoutingRepository = (*RoutingRepository)(nil)

// LoadRoutings loads routings, rejecting duplicate ids
func (r *RoutingRepository) LoadRoutings(routings []*entities.Routing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, routing := range routings {
		if _, exists := r.routings[routing.ID]; exists {
			return fmt.Errorf("duplicate routing id: %s", routing.ID)
		}
		stored := *routing
		stored.Tasks = append([]entities.RoutingTask(nil), routing.Tasks...)
		r.routings[routing.ID] = stored
	}
	return nil
}

// GetRouting returns a copy of the routing
func (r *RoutingRepository) GetRouting(_ context.Context, id entities.RoutingID) (*entities.Routing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routing, exists := r.routings[id]
	if !exists {
		return nil, entities.NewNotFound("routing", string(id))
	}
	routing.Tasks = append([]entities.RoutingTask(nil), routing.Tasks...)
	return &routing, nil
}
