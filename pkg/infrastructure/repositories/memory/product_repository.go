package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

// ProductRepository provides in-memory product storage
type ProductRepository struct {
	mu          sync.RWMutex
	products    []entities.Product
	productsMap map[entities.ProductID]int
}

// NewProductRepository creates a new in-memory product repository
func NewProductRepository(expectedProducts int) *ProductRepository {
	return &ProductRepository{
		products:    make([]entities.Product, 0, expectedProducts),
		productsMap: make(map[entities.ProductID]int, expectedProducts),
	}
}

// Verify interface compliance
var _ repositories.ProductRepository = (*ProductRepository)(nil)

// LoadProducts loads products into the repository, rejecting duplicate ids
func (r *ProductRepository) LoadProducts(products []*entities.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range products {
		if _, exists := r.productsMap[p.ID]; exists {
			return fmt.Errorf("duplicate product id: %s", p.ID)
		}
		r.productsMap[p.ID] = len(r.products)
		r.products = append(r.products, *p)
	}
	return nil
}

// GetProduct returns product master data
func (r *ProductRepository) GetProduct(_ context.Context, id entities.ProductID) (*entities.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, exists := r.productsMap[id]
	if !exists {
		return nil, entities.NewNotFound("product", string(id))
	}
	p := r.products[index]
	return &p, nil
}

// GetAllProducts returns all products in load order
func (r *ProductRepository) GetAllProducts(_ context.Context) ([]*entities.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]*entities.Product, 0, len(r.products))
	for i := range r.products {
		p := r.products[i]
		products = append(products, &p)
	}
	return products, nil
}
