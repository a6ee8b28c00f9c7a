package production

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/events"
)

// StartTask moves the next task in sequence to Running
func (s *Service) StartTask(ctx context.Context, taskID entities.TaskID) (*entities.ProductionRun, error) {
	return s.mutateTask(ctx, "start_task", taskID, func(c *change, task *entities.ProductionRunTask) error {
		if err := c.run.CanStartTask(taskID); err != nil {
			return err
		}
		task.Status = entities.TaskRunning
		task.ActualStartDate = timePtr(c.at)
		if c.run.ActualStartDate == nil {
			c.run.ActualStartDate = timePtr(c.at)
		}
		c.run.Status = c.run.DeriveStatus()
		c.emit(events.NewTaskTransitionedEvent(events.TaskStartedEvent, task, entities.TaskDeclaration{}, c.at))
		return nil
	})
}

// DeclareTask accumulates deltas into a running task without completing it
func (s *Service) DeclareTask(ctx context.Context, taskID entities.TaskID, decl entities.TaskDeclaration) (*entities.ProductionRun, error) {
	return s.mutateTask(ctx, "declare_task", taskID, func(c *change, task *entities.ProductionRunTask) error {
		if err := decl.Validate(); err != nil {
			return err
		}
		if err := c.run.CanDeclareTask(taskID); err != nil {
			return err
		}
		if err := s.declare(ctx, c, task, decl); err != nil {
			return err
		}
		c.emit(events.NewTaskTransitionedEvent(events.TaskDeclaredEvent, task, decl, c.at))
		return nil
	})
}

// CompleteTask accumulates the final deltas into a running task and completes it.
// Completing the last task completes the run.
func (s *Service) CompleteTask(ctx context.Context, taskID entities.TaskID, decl entities.TaskDeclaration) (*entities.ProductionRun, error) {
	return s.mutateTask(ctx, "complete_task", taskID, func(c *change, task *entities.ProductionRunTask) error {
		if err := decl.Validate(); err != nil {
			return err
		}
		if err := c.run.CanCompleteTask(taskID); err != nil {
			return err
		}
		if err := s.declare(ctx, c, task, decl); err != nil {
			return err
		}
		task.Status = entities.TaskCompleted
		task.ActualCompletionDate = timePtr(c.at)
		c.emit(events.NewTaskTransitionedEvent(events.TaskCompletedEvent, task, decl, c.at))

		s.settleStatus(c)
		return nil
	})
}

// declare applies the deltas and books terminal task output. The gateway call
// happens last, under a commit claim, so a failure leaves nothing to undo.
func (s *Service) declare(ctx context.Context, c *change, task *entities.ProductionRunTask, decl entities.TaskDeclaration) error {
	task.Apply(decl)
	s.rollUpQuantities(c.run)

	if task != c.run.TerminalTask() || !decl.QuantityProduced.IsPositive() {
		return nil
	}

	output := events.OutputDeclared{
		RunID:      c.run.ID,
		ProductID:  c.run.ProductID,
		FacilityID: c.run.FacilityID,
		Quantity:   decl.QuantityProduced,
		LotID:      c.run.LotID,
		ToWipPool:  c.run.IsWipRun,
	}

	if c.run.IsWipRun {
		c.run.WipCapacity = c.run.WipCapacity.Add(decl.QuantityProduced)
	} else if err := s.claim(ctx, c); err != nil {
		return err
	} else if err := s.inventory.AddStock(ctx, c.run.ProductID, c.run.FacilityID, decl.QuantityProduced, c.run.LotID); err != nil {
		return fmt.Errorf("add produced %s of %s to inventory: %w", decl.QuantityProduced, c.run.ProductID, err)
	}

	c.emit(events.NewOutputDeclaredEvent(output, c.at))
	s.logger.Info("production output declared",
		slog.String("run_id", string(c.run.ID)),
		slog.String("product_id", string(c.run.ProductID)),
		slog.String("quantity", decl.QuantityProduced.String()),
		slog.Bool("wip_pool", c.run.IsWipRun))
	return nil
}

// rollUpQuantities sets run produced to the terminal task's output and run rejected to the task total
func (s *Service) rollUpQuantities(run *entities.ProductionRun) {
	rejected := decimal.Zero
	for _, t := range run.Tasks {
		rejected = rejected.Add(t.QuantityRejected)
	}
	run.QuantityRejected = rejected
	if terminal := run.TerminalTask(); terminal != nil {
		run.QuantityProduced = terminal.QuantityProduced
	}
}

// settleStatus derives the run status and stamps completion
func (s *Service) settleStatus(c *change) {
	from := c.run.Status
	c.run.Status = c.run.DeriveStatus()
	if c.run.Status == entities.RunCompleted && from != entities.RunCompleted {
		if c.run.ActualCompletionDate == nil {
			c.run.ActualCompletionDate = timePtr(c.at)
		}
		c.emit(events.NewRunTransitionedEvent(events.RunCompletedEvent, c.run, from, c.at))
	}
}

// QuickComplete completes every remaining task, bypassing the per-task guards.
// The terminal task is credited with the quantity still to produce, which is
// booked like any declared output.
func (s *Service) QuickComplete(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "quick_complete", runID, func(c *change) error {
		if err := c.run.CanQuickComplete(); err != nil {
			return err
		}
		return s.completeAll(ctx, c)
	})
}

// QuickClose completes every remaining task and closes the run
func (s *Service) QuickClose(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "quick_close", runID, func(c *change) error {
		if err := c.run.CanQuickComplete(); err != nil {
			return err
		}
		if err := s.completeAll(ctx, c); err != nil {
			return err
		}
		s.close(c)
		return nil
	})
}

// CloseRun closes a completed run
func (s *Service) CloseRun(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "close_run", runID, func(c *change) error {
		if err := c.run.CanClose(); err != nil {
			return err
		}
		s.close(c)
		return nil
	})
}

func (s *Service) completeAll(ctx context.Context, c *change) error {
	terminal := c.run.TerminalTask()
	var credit entities.TaskDeclaration
	if terminal != nil && terminal.Status != entities.TaskCompleted {
		if remaining := c.run.QuantityToProduce.Sub(terminal.QuantityProduced); remaining.IsPositive() {
			credit.QuantityProduced = remaining
			if err := s.declare(ctx, c, terminal, credit); err != nil {
				return err
			}
		}
	}

	for _, task := range c.run.Tasks {
		if task.Status == entities.TaskCompleted {
			continue
		}
		if task.ActualStartDate == nil {
			task.ActualStartDate = timePtr(c.at)
		}
		task.Status = entities.TaskCompleted
		task.ActualCompletionDate = timePtr(c.at)
		decl := entities.TaskDeclaration{}
		if task == terminal {
			decl = credit
		}
		c.emit(events.NewTaskTransitionedEvent(events.TaskCompletedEvent, task, decl, c.at))
	}
	if c.run.ActualStartDate == nil {
		c.run.ActualStartDate = timePtr(c.at)
	}
	s.settleStatus(c)
	return nil
}

func (s *Service) close(c *change) {
	from := c.run.Status
	c.run.Status = entities.RunClosed
	c.emit(events.NewRunTransitionedEvent(events.RunClosedEvent, c.run, from, c.at))
}

// Cancel soft-cancels a run whose execution has not begun and releases its
// reservations. Issuances stay recorded. When a release fails the released
// part is persisted and the run stays open so the call can be retried.
func (s *Service) Cancel(ctx context.Context, runID entities.RunID) (*entities.ProductionRun, error) {
	return s.mutate(ctx, "cancel", runID, func(c *change) error {
		if err := c.run.CanCancel(); err != nil {
			return err
		}

		if len(c.run.Reservations) > 0 {
			if err := s.claim(ctx, c); err != nil {
				return err
			}
			released, err := s.materials.Release(ctx, c.run.Reservations)
			s.dropReservations(c, released)
			if err != nil {
				return keepProgress(fmt.Errorf("release reservations of run %s: %w", c.run.ID, err))
			}
		}

		from := c.run.Status
		c.run.Status = entities.RunCancelled
		c.emit(events.NewRunTransitionedEvent(events.RunCancelledEvent, c.run, from, c.at))
		return nil
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}
