package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// BOMRepository provides access to Bill of Materials data
type BOMRepository interface {
	// GetBomLinks returns the links of productID effective at asOf.
	GetBomLinks(ctx context.Context, productID entities.ProductID, asOf time.Time) ([]*entities.BillOfMaterialLink, error)
	GetAllBomLinks(ctx context.Context) ([]*entities.BillOfMaterialLink, error)
	LoadBomLinks(links []*entities.BillOfMaterialLink) error
}

// PriceRepository resolves unit costs
type PriceRepository interface {
	// GetUnitCost returns the most recent cost effective at asOf, or an error
	// matching entities.ErrMissingCost.
	GetUnitCost(ctx context.Context, productID entities.ProductID, currencyID string, asOf time.Time) (decimal.Decimal, error)
	LoadUnitCosts(costs []*entities.UnitCost) error
}
