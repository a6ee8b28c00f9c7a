package entities

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RunID identifies a production run
type RunID string

// TaskID identifies a production run task
type TaskID string

// RunStatus represents the lifecycle status of a production run
type RunStatus int

const (
	RunCreated RunStatus = iota
	RunScheduled
	RunConfirmed
	RunRunning
	RunCompleted
	RunClosed
	RunCancelled
)

// String method for RunStatus enum
func (s RunStatus) String() string {
	switch s {
	case RunCreated:
		return "Created"
	case RunScheduled:
		return "Scheduled"
	case RunConfirmed:
		return "Confirmed"
	case RunRunning:
		return "Running"
	case RunCompleted:
		return "Completed"
	case RunClosed:
		return "Closed"
	case RunCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the status is absorbing
func (s RunStatus) IsTerminal() bool {
	return s == RunClosed || s == RunCancelled
}

// MaterialMode records how materials were committed to a run
type MaterialMode int

const (
	MaterialsNone MaterialMode = iota
	MaterialsReserved
	MaterialsIssued
)

// String method for MaterialMode enum
func (m MaterialMode) String() string {
	switch m {
	case MaterialsNone:
		return "None"
	case MaterialsReserved:
		return "Reserved"
	case MaterialsIssued:
		return "Issued"
	default:
		return "Unknown"
	}
}

// ProductionRun is a work effort producing QuantityToProduce units of ProductID along a routing.
// The run owns its tasks; both are persisted together.
type ProductionRun struct {
	ID                      RunID
	ProductID               ProductID
	QuantityToProduce       decimal.Decimal
	FacilityID              FacilityID
	RoutingID               RoutingID
	LotID                   string
	Status                  RunStatus
	EstimatedStartDate      time.Time
	EstimatedCompletionDate time.Time
	ActualStartDate         *time.Time
	ActualCompletionDate    *time.Time
	QuantityProduced        decimal.Decimal
	QuantityRejected        decimal.Decimal

	// IsWipRun is set when ProductID is a WIP template; produced output then
	// grows WipCapacity instead of being added to inventory.
	IsWipRun    bool
	WipCapacity decimal.Decimal

	Tasks []*ProductionRunTask

	MaterialMode      MaterialMode
	MaterialsComplete bool
	Issuances         []Issuance
	Reservations      []Reservation
	Shortfalls        []Shortfall

	// CommitClaimedAt is set while a writer holds the run across inventory
	// side effects; other writers are refused until it clears or goes stale.
	CommitClaimedAt *time.Time

	Version   int64
	CreatedAt time.Time
}

// NewProductionRun creates a run with one task per routing task template
func NewProductionRun(
	id RunID,
	product *Product,
	quantity decimal.Decimal,
	facility FacilityID,
	routing *Routing,
	estimatedStart time.Time,
	taskIDs func() TaskID,
) (*ProductionRun, error) {
	if string(id) == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}
	if product == nil {
		return nil, fmt.Errorf("product cannot be nil")
	}
	if routing == nil || len(routing.Tasks) == 0 {
		return nil, fmt.Errorf("routing must have at least one task")
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("quantity to produce must be positive, got %s", quantity)
	}
	if string(facility) == "" {
		return nil, fmt.Errorf("facility cannot be empty")
	}

	run := &ProductionRun{
		ID:                 id,
		ProductID:          product.ID,
		QuantityToProduce:  quantity,
		FacilityID:         facility,
		RoutingID:          routing.ID,
		Status:             RunCreated,
		EstimatedStartDate: estimatedStart,
		QuantityProduced:   decimal.Zero,
		QuantityRejected:   decimal.Zero,
		IsWipRun:           product.IsWipTemplate,
		WipCapacity:        decimal.Zero,
	}

	for _, tmpl := range routing.Tasks {
		run.Tasks = append(run.Tasks, &ProductionRunTask{
			ID:                    taskIDs(),
			RunID:                 id,
			SequenceNum:           tmpl.SequenceNum,
			Name:                  tmpl.Name,
			FixedAssetID:          tmpl.FixedAssetID,
			PurposeTypeID:         tmpl.PurposeTypeID,
			Status:                TaskCreated,
			EstimatedSetupMillis:  tmpl.EstimatedSetupMillis,
			EstimatedMilliSeconds: tmpl.EstimatedRunMillisPerUnit,
			QuantityProduced:      decimal.Zero,
			QuantityRejected:      decimal.Zero,
		})
	}
	run.sortTasks()
	run.RecomputeEstimatedCompletion()

	return run, nil
}

func (r *ProductionRun) sortTasks() {
	sort.SliceStable(r.Tasks, func(i, j int) bool {
		return r.Tasks[i].SequenceNum < r.Tasks[j].SequenceNum
	})
}

// Task returns the task with the given id
func (r *ProductionRun) Task(id TaskID) (*ProductionRunTask, error) {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, NewNotFound("task", string(id))
}

// FirstTask returns the task with the lowest sequence number
func (r *ProductionRun) FirstTask() *ProductionRunTask {
	if len(r.Tasks) == 0 {
		return nil
	}
	return r.Tasks[0]
}

// TerminalTask returns the task with the highest sequence number
func (r *ProductionRun) TerminalTask() *ProductionRunTask {
	if len(r.Tasks) == 0 {
		return nil
	}
	return r.Tasks[len(r.Tasks)-1]
}

// RunningTask returns the running task, if any
func (r *ProductionRun) RunningTask() *ProductionRunTask {
	for _, t := range r.Tasks {
		if t.Status == TaskRunning {
			return t
		}
	}
	return nil
}

// HasStartedExecution reports whether actual execution has begun: a task is
// Completed, or a task is Running with recorded actual time or declared output.
func (r *ProductionRun) HasStartedExecution() bool {
	for _, t := range r.Tasks {
		if t.Status == TaskCompleted {
			return true
		}
		if t.Status == TaskRunning && (t.HasActualTime() || t.HasDeclaredQuantity()) {
			return true
		}
	}
	return false
}

// CommitClaimed reports whether another writer's claim is still live at now
func (r *ProductionRun) CommitClaimed(now time.Time, ttl time.Duration) bool {
	return r.CommitClaimedAt != nil && now.Sub(*r.CommitClaimedAt) < ttl
}

// DeriveStatus computes the run status from its task states
func (r *ProductionRun) DeriveStatus() RunStatus {
	if r.Status.IsTerminal() {
		return r.Status
	}

	allCompleted := true
	anyStarted := false
	for _, t := range r.Tasks {
		if t.Status != TaskCompleted {
			allCompleted = false
		}
		if t.Status == TaskRunning || t.Status == TaskCompleted {
			anyStarted = true
		}
	}

	switch {
	case allCompleted && len(r.Tasks) > 0:
		return RunCompleted
	case anyStarted:
		return RunRunning
	case r.Status == RunScheduled || r.Status == RunConfirmed:
		return r.Status
	default:
		return RunCreated
	}
}

// RecomputeEstimatedCompletion refreshes EstimatedCompletionDate from the task estimates
func (r *ProductionRun) RecomputeEstimatedCompletion() {
	r.EstimatedCompletionDate = EstimateCompletion(r.EstimatedStartDate, r.QuantityToProduce, r.Tasks)
}

// EstimateCompletion returns start plus the serial duration of all tasks for quantity units
func EstimateCompletion(start time.Time, quantity decimal.Decimal, tasks []*ProductionRunTask) time.Time {
	var total int64
	for _, t := range tasks {
		total += t.EstimatedDurationMillis(quantity)
	}
	return start.Add(time.Duration(total) * time.Millisecond)
}

// Clone returns a deep copy of the run and its tasks
func (r *ProductionRun) Clone() *ProductionRun {
	c := *r
	c.ActualStartDate = cloneTime(r.ActualStartDate)
	c.ActualCompletionDate = cloneTime(r.ActualCompletionDate)
	c.CommitClaimedAt = cloneTime(r.CommitClaimedAt)
	c.Tasks = make([]*ProductionRunTask, len(r.Tasks))
	for i, t := range r.Tasks {
		tc := *t
		tc.ActualStartDate = cloneTime(t.ActualStartDate)
		tc.ActualCompletionDate = cloneTime(t.ActualCompletionDate)
		c.Tasks[i] = &tc
	}
	c.Issuances = append([]Issuance(nil), r.Issuances...)
	c.Reservations = append([]Reservation(nil), r.Reservations...)
	c.Shortfalls = append([]Shortfall(nil), r.Shortfalls...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// WipAvailable returns capacity minus the given consumption, floored at zero
func (r *ProductionRun) WipAvailable(consumed decimal.Decimal) decimal.Decimal {
	available := r.WipCapacity.Sub(consumed)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// IssuedProducts returns the products already issued to the run
func (r *ProductionRun) IssuedProducts() map[ProductID]bool {
	done := make(map[ProductID]bool, len(r.Issuances))
	for _, iss := range r.Issuances {
		done[iss.ProductID] = true
	}
	return done
}

// ShortfallProducts returns the products with a recorded shortfall
func (r *ProductionRun) ShortfallProducts() map[ProductID]bool {
	short := make(map[ProductID]bool, len(r.Shortfalls))
	for _, sf := range r.Shortfalls {
		short[sf.ProductID] = true
	}
	return short
}

// ReplaceShortfalls records the given shortfalls, replacing any earlier
// record for the same product
func (r *ProductionRun) ReplaceShortfalls(shortfalls []Shortfall) {
	if len(shortfalls) == 0 {
		return
	}
	replaced := make(map[ProductID]bool, len(shortfalls))
	for _, sf := range shortfalls {
		replaced[sf.ProductID] = true
	}
	kept := make([]Shortfall, 0, len(r.Shortfalls)+len(shortfalls))
	for _, sf := range r.Shortfalls {
		if !replaced[sf.ProductID] {
			kept = append(kept, sf)
		}
	}
	r.Shortfalls = append(kept, shortfalls...)
}

// ReservedProducts returns the products currently reserved for the run
func (r *ProductionRun) ReservedProducts() map[ProductID]bool {
	done := make(map[ProductID]bool, len(r.Reservations))
	for _, res := range r.Reservations {
		done[res.ProductID] = true
	}
	return done
}
