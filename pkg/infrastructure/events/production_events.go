package events

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

const (
	RunCreatedEvent     = "run.created"
	RunScheduledEvent   = "run.scheduled"
	RunConfirmedEvent   = "run.confirmed"
	RunRescheduledEvent = "run.rescheduled"
	RunCompletedEvent   = "run.completed"
	RunClosedEvent      = "run.closed"
	RunCancelledEvent   = "run.cancelled"

	TaskStartedEvent          = "task.started"
	TaskDeclaredEvent         = "task.declared"
	TaskCompletedEvent        = "task.completed"
	TaskEstimatesUpdatedEvent = "task.estimates_updated"

	MaterialsIssuedEvent   = "materials.issued"
	MaterialsReservedEvent = "materials.reserved"
	MaterialsReleasedEvent = "materials.released"

	OutputDeclaredEvent     = "output.declared"
	WipDeclaredEvent        = "wip.declared"
	ShortageIdentifiedEvent = "shortage.identified"
)

type RunTransitioned struct {
	RunID     entities.RunID     `json:"run_id"`
	ProductID entities.ProductID `json:"product_id"`
	From      string             `json:"from"`
	To        string             `json:"to"`
}

type TaskTransitioned struct {
	RunID       entities.RunID           `json:"run_id"`
	TaskID      entities.TaskID          `json:"task_id"`
	SequenceNum int                      `json:"sequence_num"`
	Status      string                   `json:"status"`
	Declaration entities.TaskDeclaration `json:"declaration"`
}

type MaterialsCommitted struct {
	RunID        entities.RunID         `json:"run_id"`
	Issued       []entities.Issuance    `json:"issued,omitempty"`
	Reserved     []entities.Reservation `json:"reserved,omitempty"`
	Released     []entities.Reservation `json:"released,omitempty"`
	ShortfallCnt int                    `json:"shortfall_count"`
}

type OutputDeclared struct {
	RunID      entities.RunID      `json:"run_id"`
	ProductID  entities.ProductID  `json:"product_id"`
	FacilityID entities.FacilityID `json:"facility_id"`
	Quantity   decimal.Decimal     `json:"quantity"`
	LotID      string              `json:"lot_id,omitempty"`
	ToWipPool  bool                `json:"to_wip_pool"`
}

type WipDeclared struct {
	Entry entities.WipLedgerEntry `json:"entry"`
}

type ShortageIdentified struct {
	RunID     entities.RunID     `json:"run_id"`
	Shortfall entities.Shortfall `json:"shortfall"`
}

func NewRunTransitionedEvent(eventType string, run *entities.ProductionRun, from entities.RunStatus, at time.Time) Event {
	return NewEventAt(eventType, string(run.ID), RunTransitioned{
		RunID:     run.ID,
		ProductID: run.ProductID,
		From:      from.String(),
		To:        run.Status.String(),
	}, at)
}

func NewTaskTransitionedEvent(eventType string, task *entities.ProductionRunTask, decl entities.TaskDeclaration, at time.Time) Event {
	return NewEventAt(eventType, string(task.RunID), TaskTransitioned{
		RunID:       task.RunID,
		TaskID:      task.ID,
		SequenceNum: task.SequenceNum,
		Status:      task.Status.String(),
		Declaration: decl,
	}, at)
}

func NewMaterialsEvent(eventType string, runID entities.RunID, data MaterialsCommitted, at time.Time) Event {
	data.RunID = runID
	return NewEventAt(eventType, string(runID), data, at)
}

func NewOutputDeclaredEvent(data OutputDeclared, at time.Time) Event {
	return NewEventAt(OutputDeclaredEvent, string(data.RunID), data, at)
}

func NewWipDeclaredEvent(entry entities.WipLedgerEntry) Event {
	return NewEventAt(WipDeclaredEvent, string(entry.MainRunID), WipDeclared{Entry: entry}, entry.Timestamp)
}

func NewShortageIdentifiedEvent(runID entities.RunID, shortfall entities.Shortfall, at time.Time) Event {
	return NewEventAt(ShortageIdentifiedEvent, string(runID), ShortageIdentified{RunID: runID, Shortfall: shortfall}, at)
}
