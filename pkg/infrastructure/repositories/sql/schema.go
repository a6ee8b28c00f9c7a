package sql

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimal columns are stored as text so quantities round-trip exactly.

type runRecord struct {
	ID                      string          `gorm:"column:id;primaryKey"`
	ProductID               string          `gorm:"column:product_id;not null;index"`
	QuantityToProduce       decimal.Decimal `gorm:"column:quantity_to_produce;type:text;not null"`
	FacilityID              string          `gorm:"column:facility_id;not null"`
	RoutingID               string          `gorm:"column:routing_id;not null"`
	LotID                   string          `gorm:"column:lot_id"`
	Status                  int             `gorm:"column:status;not null;index"`
	EstimatedStartDate      time.Time       `gorm:"column:estimated_start_date"`
	EstimatedCompletionDate time.Time       `gorm:"column:estimated_completion_date"`
	ActualStartDate         *time.Time      `gorm:"column:actual_start_date"`
	ActualCompletionDate    *time.Time      `gorm:"column:actual_completion_date"`
	QuantityProduced        decimal.Decimal `gorm:"column:quantity_produced;type:text;not null"`
	QuantityRejected        decimal.Decimal `gorm:"column:quantity_rejected;type:text;not null"`
	IsWipRun                bool            `gorm:"column:is_wip_run"`
	WipCapacity             decimal.Decimal `gorm:"column:wip_capacity;type:text;not null"`
	MaterialMode            int             `gorm:"column:material_mode"`
	MaterialsComplete       bool            `gorm:"column:materials_complete"`
	CommitClaimedAt         *time.Time      `gorm:"column:commit_claimed_at"`
	Version                 int64           `gorm:"column:version;not null"`
	CreatedAt               time.Time       `gorm:"column:created_at"`
}

func (runRecord) TableName() string { return "production_run" }

type taskRecord struct {
	ID                    string          `gorm:"column:id;primaryKey"`
	RunID                 string          `gorm:"column:run_id;not null;index"`
	SequenceNum           int             `gorm:"column:sequence_num;not null"`
	Name                  string          `gorm:"column:name"`
	FixedAssetID          string          `gorm:"column:fixed_asset_id"`
	PurposeTypeID         string          `gorm:"column:purpose_type_id"`
	Status                int             `gorm:"column:status;not null"`
	EstimatedSetupMillis  int64           `gorm:"column:estimated_setup_millis"`
	EstimatedMilliSeconds int64           `gorm:"column:estimated_milli_seconds"`
	ActualSetupMillis     int64           `gorm:"column:actual_setup_millis"`
	ActualMilliSeconds    int64           `gorm:"column:actual_milli_seconds"`
	QuantityProduced      decimal.Decimal `gorm:"column:quantity_produced;type:text;not null"`
	QuantityRejected      decimal.Decimal `gorm:"column:quantity_rejected;type:text;not null"`
	ActualStartDate       *time.Time      `gorm:"column:actual_start_date"`
	ActualCompletionDate  *time.Time      `gorm:"column:actual_completion_date"`
}

func (taskRecord) TableName() string { return "production_run_task" }

const (
	kindIssuance    = "issuance"
	kindReservation = "reservation"
	kindShortfall   = "shortfall"
)

// materialRecord holds the issuances, reservations and shortfalls of a run
type materialRecord struct {
	Seq        uint            `gorm:"column:seq;primaryKey;autoIncrement"`
	RunID      string          `gorm:"column:run_id;not null;index"`
	Kind       string          `gorm:"column:kind;not null"`
	RecordID   string          `gorm:"column:record_id"`
	ProductID  string          `gorm:"column:product_id;not null"`
	FacilityID string          `gorm:"column:facility_id;not null"`
	Quantity   decimal.Decimal `gorm:"column:quantity;type:text;not null"`
	Available  decimal.Decimal `gorm:"column:available;type:text;not null"`
	LotID      string          `gorm:"column:lot_id"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
}

func (materialRecord) TableName() string { return "production_run_material" }

type wipLedgerRecord struct {
	ID                 string          `gorm:"column:id;primaryKey"`
	MainRunID          string          `gorm:"column:main_run_id;not null;index"`
	FinishedProductID  string          `gorm:"column:finished_product_id;not null"`
	FacilityID         string          `gorm:"column:facility_id"`
	LotID              string          `gorm:"column:lot_id"`
	WipPerUnitConsumed decimal.Decimal `gorm:"column:wip_per_unit_consumed;type:text;not null"`
	QuantityDeclared   decimal.Decimal `gorm:"column:quantity_declared;type:text;not null"`
	Timestamp          time.Time       `gorm:"column:timestamp;not null"`
}

func (wipLedgerRecord) TableName() string { return "wip_ledger_entry" }
