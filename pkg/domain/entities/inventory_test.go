package entities

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInventoryLot_Validation(t *testing.T) {
	receiptDate := time.Now()

	validLot, err := NewInventoryLot("PART123", "LOT001", "WAREHOUSE", decimal.NewFromInt(10), receiptDate)
	if err != nil {
		t.Fatalf("Expected valid lot creation to succeed: %v", err)
	}
	if !validLot.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected quantity 10, got %s", validLot.Quantity)
	}

	testCases := []struct {
		name        string
		productID   ProductID
		lotID       string
		facility    FacilityID
		quantity    decimal.Decimal
		expectError string
	}{
		{"empty product", "", "LOT001", "WAREHOUSE", decimal.NewFromInt(10), "product id cannot be empty"},
		{"empty lot", "PART123", "", "WAREHOUSE", decimal.NewFromInt(10), "lot id cannot be empty"},
		{"empty facility", "PART123", "LOT001", "", decimal.NewFromInt(10), "facility cannot be empty"},
		{"negative quantity", "PART123", "LOT001", "WAREHOUSE", decimal.NewFromInt(-5), "quantity cannot be negative, got -5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInventoryLot(tc.productID, tc.lotID, tc.facility, tc.quantity, receiptDate)
			if err == nil {
				t.Fatalf("Expected error for %s, but got none", tc.name)
			}
			if err.Error() != tc.expectError {
				t.Errorf("Expected error '%s', got '%s'", tc.expectError, err.Error())
			}
		})
	}
}

func TestShortfall_ReportsDetail(t *testing.T) {
	s := Shortfall{
		ProductID:  "C",
		FacilityID: "PLANT",
		Required:   decimal.NewFromInt(50),
		Available:  decimal.NewFromInt(30),
	}

	if !s.Short().Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected short quantity 20, got %s", s.Short())
	}
	if !errors.Is(s, ErrInsufficientInventory) {
		t.Error("Expected shortfall to match ErrInsufficientInventory")
	}
	want := "insufficient inventory of C at PLANT: requested 50, available 30"
	if s.Error() != want {
		t.Errorf("Expected '%s', got '%s'", want, s.Error())
	}
}

func TestWipLedgerEntry_Consumption(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := NewWipLedgerEntry("E1", "RUN1", "X", "PLANT", "", decimal.NewFromInt(10), decimal.NewFromInt(7), ts)
	if err != nil {
		t.Fatalf("Expected valid entry: %v", err)
	}
	second, err := NewWipLedgerEntry("E2", "RUN1", "Y", "PLANT", "LOT9", decimal.RequireFromString("2.5"), decimal.NewFromInt(4), ts)
	if err != nil {
		t.Fatalf("Expected valid entry: %v", err)
	}

	total := SumWipConsumed([]*WipLedgerEntry{first, second})
	if !total.Equal(decimal.NewFromInt(80)) {
		t.Errorf("Expected total consumption 80, got %s", total)
	}

	if _, err := NewWipLedgerEntry("E3", "RUN1", "X", "PLANT", "", decimal.NewFromInt(10), decimal.Zero, ts); err == nil {
		t.Error("Expected error for zero declared quantity")
	}
}
