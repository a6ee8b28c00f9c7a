package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

type priceKey struct {
	productID  entities.ProductID
	currencyID string
}

// PriceRepository stores effective-dated unit costs per product and currency
type PriceRepository struct {
	mu     sync.RWMutex
	prices map[priceKey][]entities.UnitCost
}

// NewPriceRepository creates an in-memory price repository
func NewPriceRepository() *PriceRepository {
	return &PriceRepository{
		prices: make(map[priceKey][]entities.UnitCost),
	}
}

// Verify interface compliance
var _ repositories.PriceRepository = (*PriceRepository)(nil)

// LoadUnitCosts adds costs, keeping each product's history sorted by effective date
func (r *PriceRepository) LoadUnitCosts(costs []*entities.UnitCost) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range costs {
		key := priceKey{productID: c.ProductID, currencyID: c.CurrencyID}
		history := append(r.prices[key], *c)
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].EffectiveFrom.Before(history[j].EffectiveFrom)
		})
		r.prices[key] = history
	}
	return nil
}

// GetUnitCost returns the most recent cost effective at asOf
func (r *PriceRepository) GetUnitCost(_ context.Context, productID entities.ProductID, currencyID string, asOf time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.prices[priceKey{productID: productID, currencyID: currencyID}]
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].EffectiveFrom.After(asOf) {
			return history[i].Amount, nil
		}
	}
	return decimal.Zero, &entities.MissingCostError{ProductID: productID, CurrencyID: currencyID, AsOf: asOf}
}
