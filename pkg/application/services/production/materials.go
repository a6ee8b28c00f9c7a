package production

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/application/services/issuance"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/events"
)

// IssueMaterials consumes the run's material requirements from inventory.
//
// A run is issued at most once per product: a repeated call after a complete
// issue returns the recorded issuances without touching inventory, and a call
// after a partially failed issue only processes the products that failed.
// Products issued short or not at all are not topped up on retry.
// Outstanding reservations are released before issuing.
func (s *Service) IssueMaterials(ctx context.Context, runID entities.RunID) (*dto.IssuanceResult, error) {
	var result *dto.IssuanceResult
	_, err := s.mutate(ctx, "issue_materials", runID, func(c *change) error {
		if err := c.run.CanIssueMaterials(); err != nil {
			return err
		}
		if c.run.MaterialMode == entities.MaterialsIssued && c.run.MaterialsComplete {
			result = recordedResult(c.run, issuance.ModeIssue)
			return errNoChange
		}

		if err := s.claim(ctx, c); err != nil {
			return err
		}

		releasedAny := false
		if len(c.run.Reservations) > 0 {
			released, err := s.materials.Release(ctx, c.run.Reservations)
			s.dropReservations(c, released)
			releasedAny = len(released) > 0
			if err != nil {
				return keepProgress(fmt.Errorf("release reservations of run %s before issue: %w", c.run.ID, err))
			}
		}

		res, err := s.materials.Issue(ctx, c.run, committedProducts(c.run, entities.MaterialsIssued))
		if err != nil {
			if releasedAny {
				return keepProgress(err)
			}
			return err
		}

		if c.run.MaterialMode != entities.MaterialsIssued {
			c.run.Shortfalls = nil
		}
		c.run.Issuances = append(c.run.Issuances, res.Issued...)
		c.run.MaterialMode = entities.MaterialsIssued
		c.run.MaterialsComplete = res.Complete()
		s.recordShortfalls(c, res)
		c.emit(events.NewMaterialsEvent(events.MaterialsIssuedEvent, c.run.ID, events.MaterialsCommitted{
			Issued:       res.Issued,
			ShortfallCnt: len(res.Shortfalls),
		}, c.at))

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReserveMaterials places soft holds for the run's material requirements.
// It is refused once materials were issued and follows the same at-most-once
// per product rule as IssueMaterials.
func (s *Service) ReserveMaterials(ctx context.Context, runID entities.RunID) (*dto.IssuanceResult, error) {
	var result *dto.IssuanceResult
	_, err := s.mutate(ctx, "reserve_materials", runID, func(c *change) error {
		if err := c.run.CanReserveMaterials(); err != nil {
			return err
		}
		if c.run.MaterialMode == entities.MaterialsReserved && c.run.MaterialsComplete {
			result = recordedResult(c.run, issuance.ModeReserve)
			return errNoChange
		}

		if err := s.claim(ctx, c); err != nil {
			return err
		}
		res, err := s.materials.Reserve(ctx, c.run, committedProducts(c.run, entities.MaterialsReserved))
		if err != nil {
			return err
		}

		if c.run.MaterialMode != entities.MaterialsReserved {
			c.run.Shortfalls = nil
		}
		c.run.Reservations = append(c.run.Reservations, res.Reserved...)
		c.run.MaterialMode = entities.MaterialsReserved
		c.run.MaterialsComplete = res.Complete()
		s.recordShortfalls(c, res)
		c.emit(events.NewMaterialsEvent(events.MaterialsReservedEvent, c.run.ID, events.MaterialsCommitted{
			Reserved:     res.Reserved,
			ShortfallCnt: len(res.Shortfalls),
		}, c.at))

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// committedProducts returns the products an earlier call in the same mode
// already settled, either committed or recorded short
func committedProducts(run *entities.ProductionRun, mode entities.MaterialMode) map[entities.ProductID]bool {
	var done map[entities.ProductID]bool
	if mode == entities.MaterialsIssued {
		done = run.IssuedProducts()
	} else {
		done = run.ReservedProducts()
	}
	if run.MaterialMode != mode {
		return done
	}
	for id := range run.ShortfallProducts() {
		done[id] = true
	}
	return done
}

func (s *Service) recordShortfalls(c *change, res *dto.IssuanceResult) {
	c.run.ReplaceShortfalls(res.Shortfalls)
	for _, sf := range res.Shortfalls {
		s.metrics.RecordShortfall(string(sf.ProductID))
		c.emit(events.NewShortageIdentifiedEvent(c.run.ID, sf, c.at))
	}
	if res.Err != nil {
		s.logger.Warn("material commitment incomplete",
			slog.String("run_id", string(c.run.ID)),
			slog.String("mode", res.Mode),
			slog.Any("error", res.Err))
	}
}

// dropReservations removes released reservations from the run
func (s *Service) dropReservations(c *change, released []entities.Reservation) {
	if len(released) == 0 {
		return
	}
	gone := make(map[string]bool, len(released))
	for _, r := range released {
		gone[r.ID] = true
	}
	kept := c.run.Reservations[:0]
	for _, r := range c.run.Reservations {
		if !gone[r.ID] {
			kept = append(kept, r)
		}
	}
	c.run.Reservations = kept
	if len(kept) == 0 && c.run.MaterialMode == entities.MaterialsReserved {
		c.run.MaterialMode = entities.MaterialsNone
		c.run.MaterialsComplete = false
	}
	c.emit(events.NewMaterialsEvent(events.MaterialsReleasedEvent, c.run.ID, events.MaterialsCommitted{
		Released: released,
	}, c.at))
}

func recordedResult(run *entities.ProductionRun, mode string) *dto.IssuanceResult {
	return &dto.IssuanceResult{
		RunID:      run.ID,
		Mode:       mode,
		Issued:     append([]entities.Issuance(nil), run.Issuances...),
		Reserved:   append([]entities.Reservation(nil), run.Reservations...),
		Shortfalls: append([]entities.Shortfall(nil), run.Shortfalls...),
	}
}
