package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryLot represents lot-controlled on-hand inventory at a facility
type InventoryLot struct {
	ProductID   ProductID
	LotID       string
	FacilityID  FacilityID
	Quantity    decimal.Decimal
	ReceiptDate time.Time
}

// NewInventoryLot creates a validated InventoryLot
func NewInventoryLot(productID ProductID, lotID string, facility FacilityID, quantity decimal.Decimal, receiptDate time.Time) (*InventoryLot, error) {
	if string(productID) == "" {
		return nil, fmt.Errorf("product id cannot be empty")
	}
	if lotID == "" {
		return nil, fmt.Errorf("lot id cannot be empty")
	}
	if string(facility) == "" {
		return nil, fmt.Errorf("facility cannot be empty")
	}
	if quantity.IsNegative() {
		return nil, fmt.Errorf("quantity cannot be negative, got %s", quantity)
	}

	return &InventoryLot{
		ProductID:   productID,
		LotID:       lotID,
		FacilityID:  facility,
		Quantity:    quantity,
		ReceiptDate: receiptDate,
	}, nil
}

// UnitCost is a product price effective from a date, in a currency
type UnitCost struct {
	ProductID     ProductID
	CurrencyID    string
	Amount        decimal.Decimal
	EffectiveFrom time.Time
}
