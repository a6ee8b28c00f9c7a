package repositories

import (
	"context"

	"github.com/vsinha/mes/pkg/domain/entities"
)

// RoutingRepository provides access to routing templates
type RoutingRepository interface {
	GetRouting(ctx context.Context, id entities.RoutingID) (*entities.Routing, error)
	LoadRoutings(routings []*entities.Routing) error
}
