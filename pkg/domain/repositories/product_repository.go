package repositories

import (
	"context"

	"github.com/vsinha/mes/pkg/domain/entities"
)

// ProductRepository provides access to product master data
type ProductRepository interface {
	GetProduct(ctx context.Context, id entities.ProductID) (*entities.Product, error)
	GetAllProducts(ctx context.Context) ([]*entities.Product, error)
	LoadProducts(products []*entities.Product) error
}
