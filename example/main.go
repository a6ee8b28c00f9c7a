package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/application/services/bom"
	"github.com/vsinha/mes/pkg/application/services/issuance"
	"github.com/vsinha/mes/pkg/application/services/production"
	"github.com/vsinha/mes/pkg/application/services/wip"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/events"
	"github.com/vsinha/mes/pkg/infrastructure/repositories/memory"
)

const plant entities.FacilityID = "WORKSHOP"

func main() {
	ctx := context.Background()

	// Create repositories
	products := memory.NewProductRepository(8)
	boms := memory.NewBOMRepository(8)
	prices := memory.NewPriceRepository()
	routings := memory.NewRoutingRepository()
	inventory := memory.NewInventoryLedger()
	runs := memory.NewProductionRunRepository()
	ledger := memory.NewWipLedgerRepository()

	// Set up a desk made from a cut board blank
	if err := setupDeskScenario(products, boms, prices, routings, inventory); err != nil {
		fmt.Printf("❌ Setup failed: %v\n", err)
		return
	}

	resolver := bom.NewResolver(products, boms, prices)
	engine := issuance.NewEngine(resolver, inventory)
	store := events.NewInMemoryEventStore()
	runService := production.NewService(products, routings, runs, engine, inventory, production.WithEventStore(store))
	wipService := wip.NewService(runs, boms, ledger, inventory, wip.WithEventStore(store))

	// Cost of one desk
	cost, err := resolver.Simulate(ctx, "DESK", decimal.NewFromInt(1), "USD")
	if err != nil {
		fmt.Printf("❌ Cost simulation failed: %v\n", err)
		return
	}
	fmt.Println("💰 Desk cost rollup:")
	for _, c := range cost.Displayed() {
		fmt.Printf("  %*s%s x %s = %s\n", c.Level*2, "", c.ProductID, c.Quantity, c.TotalCost.StringFixed(2))
	}
	fmt.Println()

	// Cut 20 board blanks as work in progress
	run, err := runService.CreateRun(ctx, production.CreateRunRequest{
		ProductID:          "BOARD-BLANK",
		Quantity:           decimal.NewFromInt(20),
		FacilityID:         plant,
		RoutingID:          "CUT",
		EstimatedStartDate: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		fmt.Printf("❌ Create run failed: %v\n", err)
		return
	}
	fmt.Printf("🏭 Run %s: %s x %s, estimated done %s\n",
		run.ID, run.ProductID, run.QuantityToProduce, run.EstimatedCompletionDate.Format(time.Kitchen))

	issued, err := runService.IssueMaterials(ctx, run.ID)
	if err != nil {
		fmt.Printf("❌ Issue failed: %v\n", err)
		return
	}
	for _, iss := range issued.Issued {
		fmt.Printf("  📦 issued %s x %s\n", iss.ProductID, iss.Quantity)
	}
	for _, sf := range issued.Shortfalls {
		fmt.Printf("  ⚠️  %v\n", sf)
	}

	for _, task := range run.Tasks {
		if _, err := runService.StartTask(ctx, task.ID); err != nil {
			fmt.Printf("❌ Start %s failed: %v\n", task.Name, err)
			return
		}
		decl := entities.TaskDeclaration{
			SetupMillis:      task.EstimatedSetupMillis,
			RunMillis:        task.EstimatedDurationMillis(run.QuantityToProduce) - task.EstimatedSetupMillis,
			QuantityProduced: decimal.NewFromInt(19),
			QuantityRejected: decimal.NewFromInt(1),
		}
		if _, err := runService.CompleteTask(ctx, task.ID, decl); err != nil {
			fmt.Printf("❌ Complete %s failed: %v\n", task.Name, err)
			return
		}
		fmt.Printf("  ✅ %d %s\n", task.SequenceNum, task.Name)
	}

	// Assemble desks out of the blanks
	for _, qty := range []int64{4, 1} {
		res, err := wipService.DeclareAndProduce(ctx, wip.DeclareRequest{
			MainRunID:         run.ID,
			FinishedProductID: "DESK",
			Quantity:          decimal.NewFromInt(qty),
		})
		if err != nil {
			fmt.Printf("  ⛔ %d desks: %v\n", qty, err)
			continue
		}
		fmt.Printf("  🪑 %d desks declared, %s blanks left\n", qty, res.RemainingWip)
	}

	if _, err := runService.CloseRun(ctx, run.ID); err != nil {
		fmt.Printf("❌ Close failed: %v\n", err)
		return
	}

	stock, _ := inventory.GetAvailable(ctx, "DESK", plant)
	fmt.Printf("\n📊 Desks in stock: %s\n", stock)

	evts, _ := store.ReadEvents(string(run.ID), 0)
	fmt.Printf("🧾 %d events recorded for run %s\n", len(evts), run.ID)
}

func setupDeskScenario(
	products *memory.ProductRepository,
	boms *memory.BOMRepository,
	prices *memory.PriceRepository,
	routings *memory.RoutingRepository,
	inventory *memory.InventoryLedger,
) error {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var items []*entities.Product
	for _, p := range []struct {
		id    entities.ProductID
		name  string
		isWip bool
	}{
		{"DESK", "Desk", false},
		{"BOARD-BLANK", "Board blank", true},
		{"OAK-PLANK", "Oak plank", false},
		{"LEG", "Steel leg", false},
	} {
		product, err := entities.NewProduct(p.id, p.name, "EA", p.isWip)
		if err != nil {
			return err
		}
		items = append(items, product)
	}
	if err := products.LoadProducts(items); err != nil {
		return err
	}

	var links []*entities.BillOfMaterialLink
	for _, l := range []struct {
		parent, child entities.ProductID
		qty           int64
		template      bool
	}{
		{"DESK", "BOARD-BLANK", 4, true},
		{"DESK", "LEG", 4, false},
		{"BOARD-BLANK", "OAK-PLANK", 1, false},
	} {
		link, err := entities.NewBillOfMaterialLink(l.parent, l.child, decimal.NewFromInt(l.qty), since, nil, l.template)
		if err != nil {
			return err
		}
		links = append(links, link)
	}
	if err := boms.LoadBomLinks(links); err != nil {
		return err
	}

	if err := prices.LoadUnitCosts([]*entities.UnitCost{
		{ProductID: "OAK-PLANK", CurrencyID: "USD", Amount: decimal.NewFromInt(12), EffectiveFrom: since},
		{ProductID: "LEG", CurrencyID: "USD", Amount: decimal.RequireFromString("7.50"), EffectiveFrom: since},
	}); err != nil {
		return err
	}

	cut, err := entities.NewRouting("CUT", "Cut blanks", []entities.RoutingTask{
		{SequenceNum: 10, Name: "saw", FixedAssetID: "SAW-1", EstimatedSetupMillis: (20 * time.Minute).Milliseconds(), EstimatedRunMillisPerUnit: (3 * time.Minute).Milliseconds()},
		{SequenceNum: 20, Name: "sand", FixedAssetID: "SANDER-1", EstimatedRunMillisPerUnit: (2 * time.Minute).Milliseconds()},
	})
	if err != nil {
		return err
	}
	if err := routings.LoadRoutings([]*entities.Routing{cut}); err != nil {
		return err
	}

	var lots []*entities.InventoryLot
	for _, s := range []struct {
		id  entities.ProductID
		qty int64
	}{
		{"OAK-PLANK", 18},
		{"LEG", 40},
	} {
		lot, err := entities.NewInventoryLot(s.id, "LOT-"+string(s.id), plant, decimal.NewFromInt(s.qty), since)
		if err != nil {
			return err
		}
		lots = append(lots, lot)
	}
	return inventory.LoadInventoryLots(lots)
}
