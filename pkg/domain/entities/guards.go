package entities

import "fmt"

func (r *ProductionRun) refuse(action string, taskID TaskID, reason string) error {
	return &TransitionError{
		RunID:  r.ID,
		TaskID: taskID,
		Action: action,
		Status: r.Status.String(),
		Reason: reason,
	}
}

func (r *ProductionRun) refuseClosed(action string, taskID TaskID) error {
	if r.Status.IsTerminal() || r.Status == RunCompleted {
		return r.refuse(action, taskID, fmt.Sprintf("run is %s", r.Status))
	}
	return nil
}

// CanStartTask checks that the task is the lowest non-completed task of an open run
// and that no other task is running.
func (r *ProductionRun) CanStartTask(id TaskID) error {
	const action = "start"
	task, err := r.Task(id)
	if err != nil {
		return err
	}
	if err := r.refuseClosed(action, id); err != nil {
		return err
	}

	switch task.Status {
	case TaskRunning:
		return r.refuse(action, id, "task is already running")
	case TaskCompleted:
		return r.refuse(action, id, "task is already completed")
	}

	for _, other := range r.Tasks {
		if other.ID == id {
			continue
		}
		if other.Status == TaskRunning {
			return r.refuse(action, id, fmt.Sprintf("task %d is running", other.SequenceNum))
		}
		if other.SequenceNum < task.SequenceNum && other.Status != TaskCompleted {
			return r.refuse(action, id, fmt.Sprintf("task %d is not completed", other.SequenceNum))
		}
	}
	return nil
}

// CanDeclareTask checks that deltas may be reported against the task
func (r *ProductionRun) CanDeclareTask(id TaskID) error {
	return r.requireRunning("declare", id)
}

// CanCompleteTask checks that the task may be finalized
func (r *ProductionRun) CanCompleteTask(id TaskID) error {
	return r.requireRunning("complete", id)
}

func (r *ProductionRun) requireRunning(action string, id TaskID) error {
	task, err := r.Task(id)
	if err != nil {
		return err
	}
	if err := r.refuseClosed(action, id); err != nil {
		return err
	}
	if task.Status != TaskRunning {
		return r.refuse(action, id, fmt.Sprintf("task is %s, not Running", task.Status))
	}
	return nil
}

// CanIssueMaterials checks the issue-point rule: only while the first task is not completed
func (r *ProductionRun) CanIssueMaterials() error {
	return r.canCommitMaterials("issue materials for")
}

// CanReserveMaterials checks the issue-point rule and that nothing was issued yet
func (r *ProductionRun) CanReserveMaterials() error {
	const action = "reserve materials for"
	if err := r.canCommitMaterials(action); err != nil {
		return err
	}
	if r.MaterialMode == MaterialsIssued {
		return r.refuse(action, "", "materials were already issued")
	}
	return nil
}

func (r *ProductionRun) canCommitMaterials(action string) error {
	first := r.FirstTask()
	if first == nil {
		return r.refuse(action, "", "run has no tasks")
	}
	if err := r.refuseClosed(action, ""); err != nil {
		return err
	}
	if first.Status == TaskCompleted {
		return r.refuse(action, first.ID, "first task is already completed")
	}
	return nil
}

// CanCancel checks that actual execution has not begun
func (r *ProductionRun) CanCancel() error {
	const action = "cancel"
	if err := r.refuseClosed(action, ""); err != nil {
		return err
	}
	if r.HasStartedExecution() {
		return r.refuse(action, "", "actual execution has begun")
	}
	return nil
}

// CanQuickComplete allows every state except the absorbing ones
func (r *ProductionRun) CanQuickComplete() error {
	if r.Status.IsTerminal() {
		return r.refuse("quick complete", "", fmt.Sprintf("run is %s", r.Status))
	}
	return nil
}

// CanClose requires a completed run
func (r *ProductionRun) CanClose() error {
	if r.Status != RunCompleted {
		return r.refuse("close", "", "run is not Completed")
	}
	return nil
}

// CanSchedule requires a freshly created run
func (r *ProductionRun) CanSchedule() error {
	if r.Status != RunCreated {
		return r.refuse("schedule", "", "run is not Created")
	}
	return nil
}

// CanConfirm requires a scheduled run
func (r *ProductionRun) CanConfirm() error {
	if r.Status != RunScheduled {
		return r.refuse("confirm", "", "run is not Scheduled")
	}
	return nil
}

// CanReschedule requires a run that has not started
func (r *ProductionRun) CanReschedule() error {
	switch r.Status {
	case RunCreated, RunScheduled, RunConfirmed:
		return nil
	}
	return r.refuse("reschedule", "", "run has already started")
}

// CanUpdateTaskEstimates requires an open run and a task that is not completed
func (r *ProductionRun) CanUpdateTaskEstimates(id TaskID) error {
	const action = "update estimates of"
	task, err := r.Task(id)
	if err != nil {
		return err
	}
	if err := r.refuseClosed(action, id); err != nil {
		return err
	}
	if task.Status == TaskCompleted {
		return r.refuse(action, id, "task is already completed")
	}
	return nil
}

// Flags derives the task permissions from the current run state
func (r *ProductionRun) Flags(id TaskID) TaskFlags {
	return TaskFlags{
		CanStart:    r.CanStartTask(id) == nil,
		CanComplete: r.CanCompleteTask(id) == nil,
		CanDeclare:  r.CanDeclareTask(id) == nil,
	}
}
