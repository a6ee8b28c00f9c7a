package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/domain/services"
)

// BOMRepository stores BOM links indexed by parent product
type BOMRepository struct {
	mu         sync.RWMutex
	links      []entities.BillOfMaterialLink
	bomIndexes map[entities.ProductID][]int
	validator  *services.BOMValidator
}

// NewBOMRepository creates an in-memory BOM repository
func NewBOMRepository(expectedLinks int) *BOMRepository {
	return &BOMRepository{
		links:      make([]entities.BillOfMaterialLink, 0, expectedLinks),
		bomIndexes: make(map[entities.ProductID][]int),
		validator:  services.NewBOMValidator(),
	}
}

// Verify interface compliance
var _ repositories.BOMRepository = (*BOMRepository)(nil)

// LoadBomLinks appends links to the repository. Cyclic link sets are accepted;
// use Validate to inspect them.
func (r *BOMRepository) LoadBomLinks(links []*entities.BillOfMaterialLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, link := range links {
		index := len(r.links)
		r.links = append(r.links, *link)
		r.bomIndexes[link.ParentProductID] = append(r.bomIndexes[link.ParentProductID], index)
	}
	return nil
}

// GetBomLinks returns the links of productID effective at asOf, ordered by child id
func (r *BOMRepository) GetBomLinks(_ context.Context, productID entities.ProductID, asOf time.Time) ([]*entities.BillOfMaterialLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var effective []*entities.BillOfMaterialLink
	for _, index := range r.bomIndexes[productID] {
		link := r.links[index]
		if link.EffectiveAt(asOf) {
			effective = append(effective, &link)
		}
	}
	sort.SliceStable(effective, func(i, j int) bool {
		return effective[i].ChildProductID < effective[j].ChildProductID
	})
	return effective, nil
}

// GetAllBomLinks returns every stored link
func (r *BOMRepository) GetAllBomLinks(_ context.Context) ([]*entities.BillOfMaterialLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	links := make([]*entities.BillOfMaterialLink, 0, len(r.links))
	for i := range r.links {
		link := r.links[i]
		links = append(links, &link)
	}
	return links, nil
}

// Validate checks the stored link set for cycles and overlapping duplicates
func (r *BOMRepository) Validate(ctx context.Context) *services.ValidationResult {
	links, _ := r.GetAllBomLinks(ctx)
	return r.validator.ValidateBOM(links)
}
