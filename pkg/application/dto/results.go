package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// IssuanceResult reports the outcome of an issue or reserve pass over a run's
// material requirements. Shortfalls are not errors; Errors holds per-item
// gateway failures that left the item untouched.
type IssuanceResult struct {
	RunID        entities.RunID                 `json:"run_id"`
	Mode         string                         `json:"mode"`
	Requirements []entities.MaterialRequirement `json:"requirements"`
	Issued       []entities.Issuance            `json:"issued,omitempty"`
	Reserved     []entities.Reservation         `json:"reserved,omitempty"`
	Shortfalls   []entities.Shortfall           `json:"shortfalls,omitempty"`
	Skipped      []entities.ProductID           `json:"skipped,omitempty"`
	Errors       []string                       `json:"errors,omitempty"`
	Err          error                          `json:"-"`
}

// Complete reports whether every requirement was processed without a gateway error
func (r *IssuanceResult) Complete() bool {
	return r.Err == nil
}

// IssuedQuantity returns the total issued quantity of a product
func (r *IssuanceResult) IssuedQuantity(productID entities.ProductID) decimal.Decimal {
	total := decimal.Zero
	for _, iss := range r.Issued {
		if iss.ProductID == productID {
			total = total.Add(iss.Quantity)
		}
	}
	return total
}

// ReservedQuantity returns the total reserved quantity of a product
func (r *IssuanceResult) ReservedQuantity(productID entities.ProductID) decimal.Decimal {
	total := decimal.Zero
	for _, res := range r.Reserved {
		if res.ProductID == productID {
			total = total.Add(res.Quantity)
		}
	}
	return total
}

// DeclareResult is the outcome of a successful declare-and-produce
type DeclareResult struct {
	Entry        entities.WipLedgerEntry `json:"entry"`
	RequiredWip  decimal.Decimal         `json:"required_wip"`
	RemainingWip decimal.Decimal         `json:"remaining_wip"`
}

// WipBalance summarizes the WIP pool of a main run
type WipBalance struct {
	MainRunID entities.RunID  `json:"main_run_id"`
	Capacity  decimal.Decimal `json:"capacity"`
	Consumed  decimal.Decimal `json:"consumed"`
	Available decimal.Decimal `json:"available"`
	Entries   int             `json:"entries"`
}

// RunSummary is the caller-facing view of a run and its task flags
type RunSummary struct {
	RunID                   entities.RunID     `json:"run_id"`
	ProductID               entities.ProductID `json:"product_id"`
	Status                  string             `json:"status"`
	QuantityToProduce       decimal.Decimal    `json:"quantity_to_produce"`
	QuantityProduced        decimal.Decimal    `json:"quantity_produced"`
	QuantityRejected        decimal.Decimal    `json:"quantity_rejected"`
	EstimatedStartDate      time.Time          `json:"estimated_start_date"`
	EstimatedCompletionDate time.Time          `json:"estimated_completion_date"`
	MaterialMode            string             `json:"material_mode"`
	Tasks                   []TaskSummary      `json:"tasks"`
}

// TaskSummary is the caller-facing view of a task
type TaskSummary struct {
	TaskID           entities.TaskID `json:"task_id"`
	SequenceNum      int             `json:"sequence_num"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	QuantityProduced decimal.Decimal `json:"quantity_produced"`
	QuantityRejected decimal.Decimal `json:"quantity_rejected"`
	CanStart         bool            `json:"can_start"`
	CanComplete      bool            `json:"can_complete"`
	CanDeclare       bool            `json:"can_declare"`
}

// SummarizeRun builds a RunSummary with the derived task flags
func SummarizeRun(run *entities.ProductionRun) RunSummary {
	summary := RunSummary{
		RunID:                   run.ID,
		ProductID:               run.ProductID,
		Status:                  run.Status.String(),
		QuantityToProduce:       run.QuantityToProduce,
		QuantityProduced:        run.QuantityProduced,
		QuantityRejected:        run.QuantityRejected,
		EstimatedStartDate:      run.EstimatedStartDate,
		EstimatedCompletionDate: run.EstimatedCompletionDate,
		MaterialMode:            run.MaterialMode.String(),
		Tasks:                   make([]TaskSummary, 0, len(run.Tasks)),
	}
	for _, t := range run.Tasks {
		flags := run.Flags(t.ID)
		summary.Tasks = append(summary.Tasks, TaskSummary{
			TaskID:           t.ID,
			SequenceNum:      t.SequenceNum,
			Name:             t.Name,
			Status:           t.Status.String(),
			QuantityProduced: t.QuantityProduced,
			QuantityRejected: t.QuantityRejected,
			CanStart:         flags.CanStart,
			CanComplete:      flags.CanComplete,
			CanDeclare:       flags.CanDeclare,
		})
	}
	return summary
}
