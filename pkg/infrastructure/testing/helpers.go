package testing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/memory"
)

// Plant is the facility every scenario stocks and produces at
const Plant entities.FacilityID = "PLANT"

// BaseDate is the receipt date of scenario stock and the start of scenario runs
var BaseDate = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// effectiveFrom predates every scenario date so links and prices are always in effect
var effectiveFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario bundles the in-memory repositories of a test plant
type Scenario struct {
	Products  *memory.ProductRepository
	BOMs      *memory.BOMRepository
	Prices    *memory.PriceRepository
	Routings  *memory.RoutingRepository
	Runs      *memory.ProductionRunRepository
	WipLedger *memory.WipLedgerRepository
	Inventory *memory.InventoryLedger
}

// NewScenario creates an empty scenario
func NewScenario() *Scenario {
	return &Scenario{
		Products:  memory.NewProductRepository(16),
		BOMs:      memory.NewBOMRepository(32),
		Prices:    memory.NewPriceRepository(),
		Routings:  memory.NewRoutingRepository(),
		Runs:      memory.NewProductionRunRepository(),
		WipLedger: memory.NewWipLedgerRepository(),
		Inventory: memory.NewInventoryLedger(),
	}
}

// Product adds a product
func (s *Scenario) Product(id entities.ProductID, name string, wipTemplate bool) *Scenario {
	p, err := entities.NewProduct(id, name, "EA", wipTemplate)
	if err != nil {
		panic(err)
	}
	if err := s.Products.LoadProducts([]*entities.Product{p}); err != nil {
		panic(err)
	}
	return s
}

// Link adds an open-ended BOM link
func (s *Scenario) Link(parent, child entities.ProductID, qtyPer string, isTemplate bool) *Scenario {
	l, err := entities.NewBillOfMaterialLink(parent, child, decimal.RequireFromString(qtyPer), effectiveFrom, nil, isTemplate)
	if err != nil {
		panic(err)
	}
	if err := s.BOMs.LoadBomLinks([]*entities.BillOfMaterialLink{l}); err != nil {
		panic(err)
	}
	return s
}

// Price adds a USD unit cost
func (s *Scenario) Price(id entities.ProductID, amount string) *Scenario {
	err := s.Prices.LoadUnitCosts([]*entities.UnitCost{{
		ProductID:     id,
		CurrencyID:    "USD",
		Amount:        decimal.RequireFromString(amount),
		EffectiveFrom: effectiveFrom,
	}})
	if err != nil {
		panic(err)
	}
	return s
}

// Routing adds a routing
func (s *Scenario) Routing(id entities.RoutingID, tasks ...entities.RoutingTask) *Scenario {
	r, err := entities.NewRouting(id, string(id), tasks)
	if err != nil {
		panic(err)
	}
	if err := s.Routings.LoadRoutings([]*entities.Routing{r}); err != nil {
		panic(err)
	}
	return s
}

// Stock receives quantity of a product at the plant
func (s *Scenario) Stock(id entities.ProductID, quantity int64) *Scenario {
	lot, err := entities.NewInventoryLot(id, "LOT-"+string(id), Plant, decimal.NewFromInt(quantity), BaseDate)
	if err != nil {
		panic(err)
	}
	if err := s.Inventory.LoadInventoryLots([]*entities.InventoryLot{lot}); err != nil {
		panic(err)
	}
	return s
}

// Available returns the quantity currently available at the plant
func (s *Scenario) Available(id entities.ProductID) decimal.Decimal {
	q, err := s.Inventory.GetAvailable(context.Background(), id, Plant)
	if err != nil {
		panic(err)
	}
	return q
}

// Step builds a routing task with minute estimates
func Step(seq int, name string, setupMinutes, runMinutesPerUnit int64) entities.RoutingTask {
	return entities.RoutingTask{
		SequenceNum:               seq,
		Name:                      name,
		EstimatedSetupMillis:      (time.Duration(setupMinutes) * time.Minute).Milliseconds(),
		EstimatedRunMillisPerUnit: (time.Duration(runMinutesPerUnit) * time.Minute).Milliseconds(),
	}
}

// BuildBikeShopScenario builds a bicycle plant:
//
//	BIKE  -> FRAME x1 -> TUBE x3 @5
//	      -> WHEEL x2 -> SPOKE x32 @0.25
//	                  -> RIM x1 @20
//
// One bike costs 71. Stock covers two bikes except for one rim.
func BuildBikeShopScenario() *Scenario {
	s := NewScenario()
	s.Product("BIKE", "Bicycle", false).
		Product("FRAME", "Frame", false).
		Product("TUBE", "Steel tube", false).
		Product("WHEEL", "Wheel", false).
		Product("SPOKE", "Spoke", false).
		Product("RIM", "Rim", false)

	s.Link("BIKE", "FRAME", "1", false).
		Link("BIKE", "WHEEL", "2", false).
		Link("FRAME", "TUBE", "3", false).
		Link("WHEEL", "SPOKE", "32", false).
		Link("WHEEL", "RIM", "1", false)

	s.Price("TUBE", "5").
		Price("SPOKE", "0.25").
		Price("RIM", "20")

	s.Routing("BIKE-ROUTING",
		Step(10, "cut", 10, 2),
		Step(20, "weld", 5, 1),
		Step(30, "assemble", 0, 0),
	)

	s.Stock("TUBE", 50).
		Stock("SPOKE", 500).
		Stock("RIM", 3)

	return s
}

// BuildPanelWipScenario builds a plant where a main run produces a WIP panel
// pool that finished products consume:
//
//	PANEL-WIP (WIP template) -> SHEET x1 @4
//	PANEL-A -> PANEL-WIP x10 (template link)
//	PANEL-B -> PANEL-WIP x5  (template link)
func BuildPanelWipScenario() *Scenario {
	s := NewScenario()
	s.Product("PANEL-WIP", "Panel work in progress", true).
		Product("SHEET", "Sheet stock", false).
		Product("PANEL-A", "Panel A", false).
		Product("PANEL-B", "Panel B", false)

	s.Link("PANEL-WIP", "SHEET", "1", false).
		Link("PANEL-A", "PANEL-WIP", "10", true).
		Link("PANEL-B", "PANEL-WIP", "5", true)

	s.Price("SHEET", "4")

	s.Routing("PANEL-ROUTING",
		Step(10, "press", 15, 1),
	)

	s.Stock("SHEET", 1000)

	return s
}
