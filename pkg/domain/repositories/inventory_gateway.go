package repositories

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// InventoryGateway is the boundary to the inventory ledger, the single source of
// truth for quantity on hand. Callers never cache its answers across calls.
type InventoryGateway interface {
	GetAvailable(ctx context.Context, productID entities.ProductID, facilityID entities.FacilityID) (decimal.Decimal, error)
	Reserve(ctx context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal) (string, error)
	Release(ctx context.Context, reservationID string) error
	// Issue consumes quantity; lotID may be empty to consume FIFO across lots.
	Issue(ctx context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal, lotID string) (string, error)
	AddStock(ctx context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal, lotID string) error
}
