package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// LeveledComponent is one node of a resolved BOM, in depth-first pre-order
type LeveledComponent struct {
	ProductID       entities.ProductID `json:"product_id"`
	ParentProductID entities.ProductID `json:"parent_product_id,omitempty"`
	Level           int                `json:"level"`
	Quantity        decimal.Decimal    `json:"quantity"`
	QuantityPerUnit decimal.Decimal    `json:"quantity_per_unit"`
	UnitCost        decimal.Decimal    `json:"unit_cost"`
	TotalCost       decimal.Decimal    `json:"total_cost"`
	UnitOfMeasure   string             `json:"uom"`
	IsTemplateLink  bool               `json:"is_template_link"`
	IsLeaf          bool               `json:"is_leaf"`
}

// Resolution is the output of a BOM resolve or cost simulation
type Resolution struct {
	ProductID  entities.ProductID `json:"product_id"`
	Quantity   decimal.Decimal    `json:"quantity"`
	CurrencyID string             `json:"currency_id"`
	AsOf       time.Time          `json:"as_of"`
	Components []LeveledComponent `json:"components"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Root returns the level 0 component
func (r *Resolution) Root() *LeveledComponent {
	if len(r.Components) == 0 {
		return nil
	}
	return &r.Components[0]
}

// TotalCost returns the root total cost
func (r *Resolution) TotalCost() decimal.Decimal {
	if root := r.Root(); root != nil {
		return root.TotalCost
	}
	return decimal.Zero
}

// Displayed returns the cost tree without template placeholders. Children of an
// omitted template node are re-parented to its nearest displayed ancestor and
// their levels shifted up accordingly.
func (r *Resolution) Displayed() []LeveledComponent {
	out := make([]LeveledComponent, 0, len(r.Components))

	// stack of (original level, shift, displayed parent) along the current path
	type frame struct {
		level  int
		shift  int
		parent entities.ProductID
	}
	var path []frame

	for _, c := range r.Components {
		for len(path) > 0 && path[len(path)-1].level >= c.Level {
			path = path[:len(path)-1]
		}

		shift := 0
		parent := c.ParentProductID
		if len(path) > 0 {
			top := path[len(path)-1]
			shift = top.shift
			parent = top.parent
		}

		if c.IsTemplateLink {
			path = append(path, frame{level: c.Level, shift: shift + 1, parent: parent})
			continue
		}

		shown := c
		shown.Level -= shift
		if c.Level > 0 {
			shown.ParentProductID = parent
		}
		out = append(out, shown)
		path = append(path, frame{level: c.Level, shift: shift, parent: c.ProductID})
	}

	return out
}

// LeafRequirements aggregates the quantities of non-template leaves by product,
// in first-seen order
func (r *Resolution) LeafRequirements() []ComponentRequirement {
	index := make(map[entities.ProductID]int)
	reqs := make([]ComponentRequirement, 0)

	for i, c := range r.Components {
		if i == 0 || !c.IsLeaf || c.IsTemplateLink {
			continue
		}
		if pos, ok := index[c.ProductID]; ok {
			reqs[pos].Quantity = reqs[pos].Quantity.Add(c.Quantity)
			continue
		}
		index[c.ProductID] = len(reqs)
		reqs = append(reqs, ComponentRequirement{
			ProductID:     c.ProductID,
			Quantity:      c.Quantity,
			UnitOfMeasure: c.UnitOfMeasure,
		})
	}

	return reqs
}

// ComponentRequirement is an aggregated leaf quantity
type ComponentRequirement struct {
	ProductID     entities.ProductID `json:"product_id"`
	Quantity      decimal.Decimal    `json:"quantity"`
	UnitOfMeasure string             `json:"uom"`
}
