package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WipLedgerEntry records WIP consumed from a main run by one declare-and-produce action
type WipLedgerEntry struct {
	ID                 string
	MainRunID          RunID
	FinishedProductID  ProductID
	FacilityID         FacilityID
	LotID              string
	WipPerUnitConsumed decimal.Decimal
	QuantityDeclared   decimal.Decimal
	Timestamp          time.Time
}

// NewWipLedgerEntry creates a validated WipLedgerEntry
func NewWipLedgerEntry(
	id string,
	mainRun RunID,
	finished ProductID,
	facility FacilityID,
	lotID string,
	wipPerUnit, quantity decimal.Decimal,
	ts time.Time,
) (*WipLedgerEntry, error) {
	if id == "" {
		return nil, fmt.Errorf("ledger entry id cannot be empty")
	}
	if string(mainRun) == "" {
		return nil, fmt.Errorf("main run id cannot be empty")
	}
	if string(finished) == "" {
		return nil, fmt.Errorf("finished product id cannot be empty")
	}
	if !wipPerUnit.IsPositive() {
		return nil, fmt.Errorf("wip per unit must be positive, got %s", wipPerUnit)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("declared quantity must be positive, got %s", quantity)
	}

	return &WipLedgerEntry{
		ID:                 id,
		MainRunID:          mainRun,
		FinishedProductID:  finished,
		FacilityID:         facility,
		LotID:              lotID,
		WipPerUnitConsumed: wipPerUnit,
		QuantityDeclared:   quantity,
		Timestamp:          ts,
	}, nil
}

// WipConsumed returns wipPerUnitConsumed x quantityDeclared
func (e WipLedgerEntry) WipConsumed() decimal.Decimal {
	return e.WipPerUnitConsumed.Mul(e.QuantityDeclared)
}

// SumWipConsumed totals the consumption of a set of entries
func SumWipConsumed(entries []*WipLedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.WipConsumed())
	}
	return total
}
