package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/domain/repositories"
)

type stockKey struct {
	productID  entities.ProductID
	facilityID entities.FacilityID
}

type reservation struct {
	key      stockKey
	quantity decimal.Decimal
}

// InventoryLedger is an in-memory inventory gateway over lot-controlled stock.
// Reservations reduce availability without consuming lots; issues consume lots
// FIFO by receipt date unless a lot is named.
type InventoryLedger struct {
	mu           sync.Mutex
	lots         map[stockKey][]*entities.InventoryLot
	reservations map[string]reservation
	issuances    []entities.Issuance
	now          func() time.Time
}

// NewInventoryLedger creates an empty inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{
		lots:         make(map[stockKey][]*entities.InventoryLot),
		reservations: make(map[string]reservation),
		now:          time.Now,
	}
}

// Verify interface compliance
var _ repositories.InventoryGateway = (*InventoryLedger)(nil)

// LoadInventoryLots adds lots to the ledger
func (l *InventoryLedger) LoadInventoryLots(lots []*entities.InventoryLot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, lot := range lots {
		l.addLot(*lot)
	}
	return nil
}

func (l *InventoryLedger) addLot(lot entities.InventoryLot) {
	key := stockKey{productID: lot.ProductID, facilityID: lot.FacilityID}
	for _, existing := range l.lots[key] {
		if existing.LotID == lot.LotID {
			existing.Quantity = existing.Quantity.Add(lot.Quantity)
			return
		}
	}
	l.lots[key] = append(l.lots[key], &lot)
	sort.SliceStable(l.lots[key], func(i, j int) bool {
		return l.lots[key][i].ReceiptDate.Before(l.lots[key][j].ReceiptDate)
	})
}

func (l *InventoryLedger) onHand(key stockKey) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots[key] {
		total = total.Add(lot.Quantity)
	}
	return total
}

func (l *InventoryLedger) reserved(key stockKey) decimal.Decimal {
	total := decimal.Zero
	for _, res := range l.reservations {
		if res.key == key {
			total = total.Add(res.quantity)
		}
	}
	return total
}

func (l *InventoryLedger) available(key stockKey) decimal.Decimal {
	available := l.onHand(key).Sub(l.reserved(key))
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// GetAvailable returns on-hand minus reserved quantity
func (l *InventoryLedger) GetAvailable(_ context.Context, productID entities.ProductID, facilityID entities.FacilityID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.available(stockKey{productID: productID, facilityID: facilityID}), nil
}

// Reserve places a soft hold on available stock
func (l *InventoryLedger) Reserve(_ context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal) (string, error) {
	if !quantity.IsPositive() {
		return "", fmt.Errorf("%w: reserve quantity must be positive, got %s", entities.ErrInvalidArgument, quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := stockKey{productID: productID, facilityID: facilityID}
	if available := l.available(key); quantity.GreaterThan(available) {
		return "", entities.Shortfall{ProductID: productID, FacilityID: facilityID, Required: quantity, Available: available}
	}

	id := uuid.NewString()
	l.reservations[id] = reservation{key: key, quantity: quantity}
	return id, nil
}

// Release drops a reservation
func (l *InventoryLedger) Release(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.reservations[reservationID]; !exists {
		return entities.NewNotFound("reservation", reservationID)
	}
	delete(l.reservations, reservationID)
	return nil
}

// Issue consumes stock from the named lot, or FIFO across lots when lotID is empty
func (l *InventoryLedger) Issue(_ context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal, lotID string) (string, error) {
	if !quantity.IsPositive() {
		return "", fmt.Errorf("%w: issue quantity must be positive, got %s", entities.ErrInvalidArgument, quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := stockKey{productID: productID, facilityID: facilityID}
	available := l.available(key)

	var lots []*entities.InventoryLot
	if lotID == "" {
		lots = l.lots[key]
	} else {
		for _, lot := range l.lots[key] {
			if lot.LotID == lotID {
				lots = append(lots, lot)
			}
		}
		if len(lots) == 0 {
			return "", entities.NewNotFound("lot", lotID)
		}
		if lots[0].Quantity.LessThan(available) {
			available = lots[0].Quantity
		}
	}

	if quantity.GreaterThan(available) {
		return "", entities.Shortfall{ProductID: productID, FacilityID: facilityID, Required: quantity, Available: available}
	}

	remaining := quantity
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lot.Quantity)
		lot.Quantity = lot.Quantity.Sub(take)
		remaining = remaining.Sub(take)
	}

	issuance := entities.Issuance{
		ID:         uuid.NewString(),
		ProductID:  productID,
		FacilityID: facilityID,
		Quantity:   quantity,
		LotID:      lotID,
		CreatedAt:  l.now(),
	}
	l.issuances = append(l.issuances, issuance)
	return issuance.ID, nil
}

// AddStock receives quantity into the named lot, or a new lot when lotID is empty
func (l *InventoryLedger) AddStock(_ context.Context, productID entities.ProductID, facilityID entities.FacilityID, quantity decimal.Decimal, lotID string) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: stock quantity must be positive, got %s", entities.ErrInvalidArgument, quantity)
	}
	if lotID == "" {
		lotID = "LOT-" + uuid.NewString()[:8]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.addLot(entities.InventoryLot{
		ProductID:   productID,
		LotID:       lotID,
		FacilityID:  facilityID,
		Quantity:    quantity,
		ReceiptDate: l.now(),
	})
	return nil
}

// OnHand returns the physical quantity at a facility, ignoring reservations
func (l *InventoryLedger) OnHand(productID entities.ProductID, facilityID entities.FacilityID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.onHand(stockKey{productID: productID, facilityID: facilityID})
}

// Lots returns copies of the lots of a product at a facility in FIFO order
func (l *InventoryLedger) Lots(productID entities.ProductID, facilityID entities.FacilityID) []entities.InventoryLot {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := l.lots[stockKey{productID: productID, facilityID: facilityID}]
	lots := make([]entities.InventoryLot, 0, len(stored))
	for _, lot := range stored {
		lots = append(lots, *lot)
	}
	return lots
}

// ReservationCount returns the number of open reservations
func (l *InventoryLedger) ReservationCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.reservations)
}

// Issuances returns the issuance history
func (l *InventoryLedger) Issuances() []entities.Issuance {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]entities.Issuance(nil), l.issuances...)
}
