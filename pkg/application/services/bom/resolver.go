package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
	"github.com/vsinha/mes/pkg/infrastructure/logging"
	"github.com/vsinha/mes/pkg/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// MissingCostPolicy decides what happens when a costed leaf has no price
type MissingCostPolicy int

const (
	// MissingCostFail aborts resolution with a MissingCostError
	MissingCostFail MissingCostPolicy = iota
	// MissingCostZero prices the leaf at zero and records a warning
	MissingCostZero
)

// String method for MissingCostPolicy enum
func (p MissingCostPolicy) String() string {
	switch p {
	case MissingCostFail:
		return "fail"
	case MissingCostZero:
		return "zero"
	default:
		return "unknown"
	}
}

// ParseMissingCostPolicy maps a configuration value to a policy
func ParseMissingCostPolicy(s string) (MissingCostPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fail":
		return MissingCostFail, nil
	case "zero":
		return MissingCostZero, nil
	default:
		return MissingCostFail, fmt.Errorf("unknown missing cost policy: %s", s)
	}
}

// Resolver expands a product's bill of materials into leveled, costed components
type Resolver struct {
	products repositories.ProductRepository
	boms     repositories.BOMRepository
	prices   repositories.PriceRepository

	currency string
	policy   MissingCostPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMissingCostPolicy sets the policy for unpriced leaves
func WithMissingCostPolicy(p MissingCostPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithCurrency sets the currency used by Resolve
func WithCurrency(currency string) Option {
	return func(r *Resolver) { r.currency = currency }
}

// WithClock sets the clock used by Simulate
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver. The default policy is MissingCostFail in USD.
func NewResolver(
	products repositories.ProductRepository,
	boms repositories.BOMRepository,
	prices repositories.PriceRepository,
	opts ...Option,
) *Resolver {
	r := &Resolver{
		products: products,
		boms:     boms,
		prices:   prices,
		currency: "USD",
		policy:   MissingCostFail,
		now:      time.Now,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured missing-cost policy
func (r *Resolver) Policy() MissingCostPolicy {
	return r.policy
}

// Resolve expands productID for quantity units as of asOf in the resolver's currency
func (r *Resolver) Resolve(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, asOf time.Time) (*dto.Resolution, error) {
	return r.resolve(ctx, productID, quantity, r.currency, asOf)
}

// Simulate computes the cost rollup of quantity units of productID in currencyID as of now
func (r *Resolver) Simulate(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, currencyID string) (*dto.Resolution, error) {
	if currencyID == "" {
		currencyID = r.currency
	}
	return r.resolve(ctx, productID, quantity, currencyID, r.now())
}

// Requirements expands productID for quantity units as of asOf without pricing and
// returns the aggregated non-template leaf quantities
func (r *Resolver) Requirements(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, asOf time.Time) ([]dto.ComponentRequirement, error) {
	res, err := r.expand(ctx, productID, quantity, "", asOf, false)
	if err != nil {
		return nil, err
	}
	return res.LeafRequirements(), nil
}

func (r *Resolver) resolve(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, currencyID string, asOf time.Time) (*dto.Resolution, error) {
	return r.expand(ctx, productID, quantity, currencyID, asOf, true)
}

func (r *Resolver) expand(ctx context.Context, productID entities.ProductID, quantity decimal.Decimal, currencyID string, asOf time.Time, priced bool) (res *dto.Resolution, err error) {
	ctx, span := tracing.Start(ctx, "bom.Resolve",
		attribute.String("product_id", string(productID)),
		attribute.String("quantity", quantity.String()),
		attribute.String("currency_id", currencyID),
		attribute.Bool("priced", priced),
	)
	defer func() { tracing.End(span, err) }()

	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", entities.ErrInvalidArgument, quantity)
	}

	snap, err := r.fetch(ctx, productID, currencyID, asOf, priced)
	if err != nil {
		return nil, err
	}

	w := &walker{
		snap:    snap,
		policy:  r.policy,
		priced:  priced,
		onPath:  make(map[entities.ProductID]bool),
		results: make([]dto.LeveledComponent, 0, len(snap.products)),
	}
	if _, err := w.visit(productID, "", decimal.NewFromInt(1), quantity, 0, false, nil); err != nil {
		return nil, err
	}

	for _, warning := range w.warnings {
		r.logger.Warn("bom cost defaulted to zero",
			slog.String("root_product_id", string(productID)),
			slog.String("detail", warning))
	}

	return &dto.Resolution{
		ProductID:  productID,
		Quantity:   quantity,
		CurrencyID: currencyID,
		AsOf:       asOf,
		Components: w.results,
		Warnings:   w.warnings,
	}, nil
}

// snapshot is the BOM and price data reachable from a root, fetched up front so
// the traversal itself performs no I/O
type snapshot struct {
	products map[entities.ProductID]*entities.Product
	links    map[entities.ProductID][]*entities.BillOfMaterialLink
	costs    map[entities.ProductID]decimal.Decimal
	missing  map[entities.ProductID]error
}

// fetch loads every reachable product and its effective links breadth first,
// each product once, then the unit costs of the leaves that will be priced
func (r *Resolver) fetch(ctx context.Context, root entities.ProductID, currencyID string, asOf time.Time, priced bool) (*snapshot, error) {
	snap := &snapshot{
		products: make(map[entities.ProductID]*entities.Product),
		links:    make(map[entities.ProductID][]*entities.BillOfMaterialLink),
		costs:    make(map[entities.ProductID]decimal.Decimal),
		missing:  make(map[entities.ProductID]error),
	}

	// products reached through at least one non-template edge, or the root
	costed := map[entities.ProductID]bool{root: true}
	queue := []entities.ProductID{root}
	seen := map[entities.ProductID]bool{root: true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		product, err := r.products.GetProduct(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("failed to get product %s: %w", current, err)
		}
		snap.products[current] = product

		links, err := r.boms.GetBomLinks(ctx, current, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to get bom links for %s: %w", current, err)
		}
		snap.links[current] = links

		for _, link := range links {
			if !link.IsTemplateLink {
				costed[link.ChildProductID] = true
			}
			if !seen[link.ChildProductID] {
				seen[link.ChildProductID] = true
				queue = append(queue, link.ChildProductID)
			}
		}
	}

	if !priced {
		return snap, nil
	}
	for productID := range costed {
		if len(snap.links[productID]) > 0 {
			continue
		}
		cost, err := r.prices.GetUnitCost(ctx, productID, currencyID, asOf)
		switch {
		case err == nil:
			snap.costs[productID] = cost
		case errors.Is(err, entities.ErrMissingCost):
			snap.missing[productID] = err
		default:
			return nil, fmt.Errorf("failed to get unit cost for %s: %w", productID, err)
		}
	}

	return snap, nil
}

// walker is the pure depth-first pass over a snapshot
type walker struct {
	snap     *snapshot
	policy   MissingCostPolicy
	priced   bool
	onPath   map[entities.ProductID]bool
	results  []dto.LeveledComponent
	warnings []string
}

// visit appends the node in pre-order, recurses into its children and fills in
// the rolled-up cost. It returns the node's total cost.
func (w *walker) visit(
	productID, parentID entities.ProductID,
	qtyPer, quantity decimal.Decimal,
	level int,
	isTemplate bool,
	path []entities.ProductID,
) (decimal.Decimal, error) {
	path = append(path, productID)
	w.onPath[productID] = true
	defer delete(w.onPath, productID)

	product := w.snap.products[productID]
	index := len(w.results)
	w.results = append(w.results, dto.LeveledComponent{
		ProductID:       productID,
		ParentProductID: parentID,
		Level:           level,
		Quantity:        quantity,
		QuantityPerUnit: qtyPer,
		UnitOfMeasure:   product.UnitOfMeasure,
		IsTemplateLink:  isTemplate,
	})

	links := w.snap.links[productID]
	if len(links) == 0 {
		unitCost, err := w.leafCost(productID, isTemplate)
		if err != nil {
			return decimal.Zero, err
		}
		total := unitCost.Mul(quantity)
		w.results[index].IsLeaf = true
		w.results[index].UnitCost = unitCost
		w.results[index].TotalCost = total
		return total, nil
	}

	total := decimal.Zero
	for _, link := range links {
		if w.onPath[link.ChildProductID] {
			cycle := make([]entities.ProductID, 0, len(path)+1)
			cycle = append(cycle, path...)
			return decimal.Zero, &entities.CycleError{Path: append(cycle, link.ChildProductID)}
		}
		childTotal, err := w.visit(
			link.ChildProductID,
			productID,
			link.QuantityPerUnit,
			quantity.Mul(link.QuantityPerUnit),
			level+1,
			link.IsTemplateLink,
			path,
		)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(childTotal)
	}

	w.results[index].TotalCost = total
	w.results[index].UnitCost = total.Div(quantity)
	return total, nil
}

func (w *walker) leafCost(productID entities.ProductID, isTemplate bool) (decimal.Decimal, error) {
	if isTemplate || !w.priced {
		return decimal.Zero, nil
	}
	if cost, ok := w.snap.costs[productID]; ok {
		return cost, nil
	}

	err := w.snap.missing[productID]
	if err == nil {
		err = &entities.MissingCostError{ProductID: productID}
	}
	if w.policy == MissingCostFail {
		return decimal.Zero, err
	}
	w.warnings = append(w.warnings, err.Error())
	return decimal.Zero, nil
}
