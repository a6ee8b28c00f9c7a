package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaterialRequirement is a component quantity a run needs at its facility
type MaterialRequirement struct {
	ProductID        ProductID       `json:"product_id"`
	FacilityID       FacilityID      `json:"facility_id"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	QuantityIssued   decimal.Decimal `json:"quantity_issued"`
	LotID            string          `json:"lot_id,omitempty"`
}

// Shortfall records the part of a requirement that inventory could not cover
type Shortfall struct {
	ProductID  ProductID       `json:"product_id"`
	FacilityID FacilityID      `json:"facility_id"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
}

// Short returns the uncovered quantity
func (s Shortfall) Short() decimal.Decimal {
	return s.Required.Sub(s.Available)
}

func (s Shortfall) Error() string {
	return fmt.Sprintf("insufficient inventory of %s at %s: requested %s, available %s",
		s.ProductID, s.FacilityID, s.Required, s.Available)
}

func (s Shortfall) Is(target error) bool { return target == ErrInsufficientInventory }

// Reservation is a soft hold placed for a run
type Reservation struct {
	ID         string          `json:"id"`
	ProductID  ProductID       `json:"product_id"`
	FacilityID FacilityID      `json:"facility_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Issuance is a hard consumption recorded against a run
type Issuance struct {
	ID         string          `json:"id"`
	ProductID  ProductID       `json:"product_id"`
	FacilityID FacilityID      `json:"facility_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	LotID      string          `json:"lot_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
