package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

const dateLayout = "2006-01-02"

// Scenario file names inside a data directory
const (
	ProductsFile  = "products.csv"
	BOMFile       = "bom.csv"
	PricesFile    = "prices.csv"
	RoutingsFile  = "routings.csv"
	InventoryFile = "inventory.csv"
)

var (
	productsHeader  = []string{"product_id", "name", "unit_of_measure", "is_wip_template"}
	bomHeader       = []string{"parent_product_id", "child_product_id", "quantity_per_unit", "effective_from", "effective_thru", "is_template_link"}
	pricesHeader    = []string{"product_id", "currency_id", "amount", "effective_from"}
	routingsHeader  = []string{"routing_id", "routing_name", "sequence_num", "task_name", "fixed_asset_id", "purpose_type_id", "estimated_setup_millis", "estimated_run_millis_per_unit"}
	inventoryHeader = []string{"product_id", "lot_id", "facility_id", "quantity", "receipt_date"}
)

// Dataset is the master data and stock of a plant scenario
type Dataset struct {
	Products []*entities.Product
	Links    []*entities.BillOfMaterialLink
	Costs    []*entities.UnitCost
	Routings []*entities.Routing
	Lots     []*entities.InventoryLot
}

// Loader handles loading scenario data from CSV files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadDirectory loads a scenario from dir. Products and BOM files are required;
// prices, routings and inventory are loaded when present.
func (l *Loader) LoadDirectory(dir string) (*Dataset, error) {
	ds := &Dataset{}
	var err error

	if ds.Products, err = l.LoadProducts(filepath.Join(dir, ProductsFile)); err != nil {
		return nil, err
	}
	if ds.Links, err = l.LoadBomLinks(filepath.Join(dir, BOMFile)); err != nil {
		return nil, err
	}
	if ds.Costs, err = l.LoadUnitCosts(filepath.Join(dir, PricesFile)); missing(err) {
		ds.Costs = nil
	} else if err != nil {
		return nil, err
	}
	if ds.Routings, err = l.LoadRoutings(filepath.Join(dir, RoutingsFile)); missing(err) {
		ds.Routings = nil
	} else if err != nil {
		return nil, err
	}
	if ds.Lots, err = l.LoadInventoryLots(filepath.Join(dir, InventoryFile)); missing(err) {
		ds.Lots = nil
	} else if err != nil {
		return nil, err
	}
	return ds, nil
}

// missing reports whether an optional file is absent
func missing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// LoadProducts loads products from a CSV file
func (l *Loader) LoadProducts(filename string) ([]*entities.Product, error) {
	records, err := readRecords(filename, "products", productsHeader)
	if err != nil {
		return nil, err
	}

	var products []*entities.Product
	for i, record := range records {
		isWip, err := parseBool(record[3], "is_wip_template")
		if err != nil {
			return nil, fmt.Errorf("products CSV row %d: %w", i+2, err)
		}
		product, err := entities.NewProduct(entities.ProductID(record[0]), record[1], record[2], isWip)
		if err != nil {
			return nil, fmt.Errorf("products CSV row %d: %w", i+2, err)
		}
		products = append(products, product)
	}
	return products, nil
}

// LoadBomLinks loads BOM links from a CSV file
func (l *Loader) LoadBomLinks(filename string) ([]*entities.BillOfMaterialLink, error) {
	records, err := readRecords(filename, "BOM", bomHeader)
	if err != nil {
		return nil, err
	}

	var links []*entities.BillOfMaterialLink
	for i, record := range records {
		link, err := parseBomLink(record)
		if err != nil {
			return nil, fmt.Errorf("BOM CSV row %d: %w", i+2, err)
		}
		links = append(links, link)
	}
	return links, nil
}

// LoadUnitCosts loads unit costs from a CSV file
func (l *Loader) LoadUnitCosts(filename string) ([]*entities.UnitCost, error) {
	records, err := readRecords(filename, "prices", pricesHeader)
	if err != nil {
		return nil, err
	}

	var costs []*entities.UnitCost
	for i, record := range records {
		amount, err := decimal.NewFromString(record[2])
		if err != nil {
			return nil, fmt.Errorf("prices CSV row %d: invalid amount: %s", i+2, record[2])
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("prices CSV row %d: amount cannot be negative: %s", i+2, record[2])
		}
		from, err := time.Parse(dateLayout, record[3])
		if err != nil {
			return nil, fmt.Errorf("prices CSV row %d: invalid effective_from format: %s (expected YYYY-MM-DD)", i+2, record[3])
		}
		costs = append(costs, &entities.UnitCost{
			ProductID:     entities.ProductID(record[0]),
			CurrencyID:    strings.ToUpper(record[1]),
			Amount:        amount,
			EffectiveFrom: from,
		})
	}
	return costs, nil
}

// LoadRoutings loads routings from a CSV file with one row per routing task
func (l *Loader) LoadRoutings(filename string) ([]*entities.Routing, error) {
	records, err := readRecords(filename, "routings", routingsHeader)
	if err != nil {
		return nil, err
	}

	var order []entities.RoutingID
	names := make(map[entities.RoutingID]string)
	tasks := make(map[entities.RoutingID][]entities.RoutingTask)

	for i, record := range records {
		id := entities.RoutingID(record[0])
		task, err := parseRoutingTask(record)
		if err != nil {
			return nil, fmt.Errorf("routings CSV row %d: %w", i+2, err)
		}
		if _, seen := tasks[id]; !seen {
			order = append(order, id)
			names[id] = record[1]
		}
		tasks[id] = append(tasks[id], task)
	}

	routings := make([]*entities.Routing, 0, len(order))
	for _, id := range order {
		routing, err := entities.NewRouting(id, names[id], tasks[id])
		if err != nil {
			return nil, fmt.Errorf("routings CSV: %w", err)
		}
		routings = append(routings, routing)
	}
	return routings, nil
}

// LoadInventoryLots loads on-hand lots from a CSV file
func (l *Loader) LoadInventoryLots(filename string) ([]*entities.InventoryLot, error) {
	records, err := readRecords(filename, "inventory", inventoryHeader)
	if err != nil {
		return nil, err
	}

	var lots []*entities.InventoryLot
	for i, record := range records {
		quantity, err := decimal.NewFromString(record[3])
		if err != nil {
			return nil, fmt.Errorf("inventory CSV row %d: invalid quantity: %s", i+2, record[3])
		}
		receiptDate, err := time.Parse(dateLayout, record[4])
		if err != nil {
			return nil, fmt.Errorf("inventory CSV row %d: invalid receipt_date format: %s (expected YYYY-MM-DD)", i+2, record[4])
		}
		lot, err := entities.NewInventoryLot(entities.ProductID(record[0]), record[1], entities.FacilityID(record[2]), quantity, receiptDate)
		if err != nil {
			return nil, fmt.Errorf("inventory CSV row %d: %w", i+2, err)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// readRecords opens a CSV file, checks its header and returns the data rows
func readRecords(filename, kind string, expectedHeader []string) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file %s: %w", kind, filename, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", kind, err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("%s CSV must have header and at least one data row", kind)
	}

	header := records[0]
	if !validateHeader(header, expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", kind, expectedHeader, header)
	}

	for i, record := range records[1:] {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("%s CSV row %d: expected %d columns, got %d", kind, i+2, len(expectedHeader), len(record))
		}
	}
	return records[1:], nil
}

func validateHeader(header, expected []string) bool {
	if len(header) != len(expected) {
		return false
	}
	for i, h := range header {
		if strings.TrimSpace(strings.ToLower(h)) != expected[i] {
			return false
		}
	}
	return true
}

func parseBomLink(record []string) (*entities.BillOfMaterialLink, error) {
	qtyPer, err := decimal.NewFromString(record[2])
	if err != nil {
		return nil, fmt.Errorf("invalid quantity_per_unit: %s", record[2])
	}

	from, err := time.Parse(dateLayout, record[3])
	if err != nil {
		return nil, fmt.Errorf("invalid effective_from format: %s (expected YYYY-MM-DD)", record[3])
	}

	var thru *time.Time
	if record[4] != "" {
		t, err := time.Parse(dateLayout, record[4])
		if err != nil {
			return nil, fmt.Errorf("invalid effective_thru format: %s (expected YYYY-MM-DD)", record[4])
		}
		thru = &t
	}

	isTemplate, err := parseBool(record[5], "is_template_link")
	if err != nil {
		return nil, err
	}

	return entities.NewBillOfMaterialLink(entities.ProductID(record[0]), entities.ProductID(record[1]), qtyPer, from, thru, isTemplate)
}

func parseRoutingTask(record []string) (entities.RoutingTask, error) {
	seq, err := strconv.Atoi(record[2])
	if err != nil {
		return entities.RoutingTask{}, fmt.Errorf("invalid sequence_num: %s", record[2])
	}
	setup, err := strconv.ParseInt(record[6], 10, 64)
	if err != nil {
		return entities.RoutingTask{}, fmt.Errorf("invalid estimated_setup_millis: %s", record[6])
	}
	run, err := strconv.ParseInt(record[7], 10, 64)
	if err != nil {
		return entities.RoutingTask{}, fmt.Errorf("invalid estimated_run_millis_per_unit: %s", record[7])
	}

	return entities.RoutingTask{
		SequenceNum:               seq,
		Name:                      record[3],
		FixedAssetID:              record[4],
		PurposeTypeID:             record[5],
		EstimatedSetupMillis:      setup,
		EstimatedRunMillisPerUnit: run,
	}, nil
}

func parseBool(s, field string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "n", "no", "0":
		return false, nil
	case "true", "y", "yes", "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s: %s (expected true or false)", field, s)
	}
}
