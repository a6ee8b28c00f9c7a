package entities

import "fmt"

// ProductID represents a unique product identifier
type ProductID string

// FacilityID identifies the facility (warehouse/plant) holding inventory
type FacilityID string

// Product represents a manufactured or purchased product
type Product struct {
	ID            ProductID
	Name          string
	UnitOfMeasure string
	// IsWipTemplate marks a non-sellable intermediate placeholder whose output is
	// consumed by sibling finished products.
	IsWipTemplate bool
}

// NewProduct creates a validated Product
func NewProduct(id ProductID, name, uom string, isWipTemplate bool) (*Product, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("product id cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("product name cannot be empty")
	}
	if uom == "" {
		return nil, fmt.Errorf("unit of measure cannot be empty")
	}

	return &Product{
		ID:            id,
		Name:          name,
		UnitOfMeasure: uom,
		IsWipTemplate: isWipTemplate,
	}, nil
}
