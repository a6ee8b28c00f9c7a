package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillOfMaterialLink represents a single parent -> child edge of a Bill of Materials
type BillOfMaterialLink struct {
	ParentProductID ProductID
	ChildProductID  ProductID
	QuantityPerUnit decimal.Decimal
	EffectiveFrom   time.Time
	EffectiveThru   *time.Time // nil = open ended
	// IsTemplateLink marks the child as a WIP placeholder rather than a costed component.
	IsTemplateLink bool
}

// NewBillOfMaterialLink creates a validated BillOfMaterialLink
func NewBillOfMaterialLink(
	parent, child ProductID,
	qtyPer decimal.Decimal,
	from time.Time,
	thru *time.Time,
	isTemplateLink bool,
) (*BillOfMaterialLink, error) {
	if string(parent) == "" {
		return nil, fmt.Errorf("parent product id cannot be empty")
	}
	if string(child) == "" {
		return nil, fmt.Errorf("child product id cannot be empty")
	}
	if parent == child {
		return nil, fmt.Errorf("parent and child products cannot be the same: %s", parent)
	}
	if !qtyPer.IsPositive() {
		return nil, fmt.Errorf("quantity per unit must be positive, got %s", qtyPer)
	}
	if thru != nil && thru.Before(from) {
		return nil, fmt.Errorf("effective thru %s is before effective from %s",
			thru.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	return &BillOfMaterialLink{
		ParentProductID: parent,
		ChildProductID:  child,
		QuantityPerUnit: qtyPer,
		EffectiveFrom:   from,
		EffectiveThru:   thru,
		IsTemplateLink:  isTemplateLink,
	}, nil
}

// EffectiveAt reports whether the link is in effect at the given date
func (l BillOfMaterialLink) EffectiveAt(asOf time.Time) bool {
	if asOf.Before(l.EffectiveFrom) {
		return false
	}
	return l.EffectiveThru == nil || !asOf.After(*l.EffectiveThru)
}

// Overlaps reports whether the effective windows of two links share at least one instant
func (l BillOfMaterialLink) Overlaps(other BillOfMaterialLink) bool {
	if l.EffectiveThru != nil && l.EffectiveThru.Before(other.EffectiveFrom) {
		return false
	}
	if other.EffectiveThru != nil && other.EffectiveThru.Before(l.EffectiveFrom) {
		return false
	}
	return true
}
