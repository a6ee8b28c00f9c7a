package sql

import (
	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/domain/entities"
)

func fromDomainRun(run *entities.ProductionRun) *runRecord {
	return &runRecord{
		ID:                      string(run.ID),
		ProductID:               string(run.ProductID),
		QuantityToProduce:       run.QuantityToProduce,
		FacilityID:              string(run.FacilityID),
		RoutingID:               string(run.RoutingID),
		LotID:                   run.LotID,
		Status:                  int(run.Status),
		EstimatedStartDate:      run.EstimatedStartDate,
		EstimatedCompletionDate: run.EstimatedCompletionDate,
		ActualStartDate:         run.ActualStartDate,
		ActualCompletionDate:    run.ActualCompletionDate,
		QuantityProduced:        run.QuantityProduced,
		QuantityRejected:        run.QuantityRejected,
		IsWipRun:                run.IsWipRun,
		WipCapacity:             run.WipCapacity,
		MaterialMode:            int(run.MaterialMode),
		MaterialsComplete:       run.MaterialsComplete,
		CommitClaimedAt:         run.CommitClaimedAt,
		Version:                 run.Version,
		CreatedAt:               run.CreatedAt,
	}
}

func toDomainRun(rec *runRecord, tasks []taskRecord, materials []materialRecord) *entities.ProductionRun {
	run := &entities.ProductionRun{
		ID:                      entities.RunID(rec.ID),
		ProductID:               entities.ProductID(rec.ProductID),
		QuantityToProduce:       rec.QuantityToProduce,
		FacilityID:              entities.FacilityID(rec.FacilityID),
		RoutingID:               entities.RoutingID(rec.RoutingID),
		LotID:                   rec.LotID,
		Status:                  entities.RunStatus(rec.Status),
		EstimatedStartDate:      rec.EstimatedStartDate,
		EstimatedCompletionDate: rec.EstimatedCompletionDate,
		ActualStartDate:         rec.ActualStartDate,
		ActualCompletionDate:    rec.ActualCompletionDate,
		QuantityProduced:        rec.QuantityProduced,
		QuantityRejected:        rec.QuantityRejected,
		IsWipRun:                rec.IsWipRun,
		WipCapacity:             rec.WipCapacity,
		MaterialMode:            entities.MaterialMode(rec.MaterialMode),
		MaterialsComplete:       rec.MaterialsComplete,
		CommitClaimedAt:         rec.CommitClaimedAt,
		Version:                 rec.Version,
		CreatedAt:               rec.CreatedAt,
		Tasks:                   make([]*entities.ProductionRunTask, 0, len(tasks)),
	}

	for i := range tasks {
		run.Tasks = append(run.Tasks, toDomainTask(&tasks[i]))
	}

	for _, m := range materials {
		switch m.Kind {
		case kindIssuance:
			run.Issuances = append(run.Issuances, entities.Issuance{
				ID:         m.RecordID,
				ProductID:  entities.ProductID(m.ProductID),
				FacilityID: entities.FacilityID(m.FacilityID),
				Quantity:   m.Quantity,
				LotID:      m.LotID,
				CreatedAt:  m.CreatedAt,
			})
		case kindReservation:
			run.Reservations = append(run.Reservations, entities.Reservation{
				ID:         m.RecordID,
				ProductID:  entities.ProductID(m.ProductID),
				FacilityID: entities.FacilityID(m.FacilityID),
				Quantity:   m.Quantity,
				CreatedAt:  m.CreatedAt,
			})
		case kindShortfall:
			run.Shortfalls = append(run.Shortfalls, entities.Shortfall{
				ProductID:  entities.ProductID(m.ProductID),
				FacilityID: entities.FacilityID(m.FacilityID),
				Required:   m.Quantity,
				Available:  m.Available,
			})
		}
	}
	return run
}

func fromDomainTasks(run *entities.ProductionRun) []taskRecord {
	records := make([]taskRecord, 0, len(run.Tasks))
	for _, t := range run.Tasks {
		records = append(records, taskRecord{
			ID:                    string(t.ID),
			RunID:                 string(run.ID),
			SequenceNum:           t.SequenceNum,
			Name:                  t.Name,
			FixedAssetID:          t.FixedAssetID,
			PurposeTypeID:         t.PurposeTypeID,
			Status:                int(t.Status),
			EstimatedSetupMillis:  t.EstimatedSetupMillis,
			EstimatedMilliSeconds: t.EstimatedMilliSeconds,
			ActualSetupMillis:     t.ActualSetupMillis,
			ActualMilliSeconds:    t.ActualMilliSeconds,
			QuantityProduced:      t.QuantityProduced,
			QuantityRejected:      t.QuantityRejected,
			ActualStartDate:       t.ActualStartDate,
			ActualCompletionDate:  t.ActualCompletionDate,
		})
	}
	return records
}

func toDomainTask(rec *taskRecord) *entities.ProductionRunTask {
	return &entities.ProductionRunTask{
		ID:                    entities.TaskID(rec.ID),
		RunID:                 entities.RunID(rec.RunID),
		SequenceNum:           rec.SequenceNum,
		Name:                  rec.Name,
		FixedAssetID:          rec.FixedAssetID,
		PurposeTypeID:         rec.PurposeTypeID,
		Status:                entities.TaskStatus(rec.Status),
		EstimatedSetupMillis:  rec.EstimatedSetupMillis,
		EstimatedMilliSeconds: rec.EstimatedMilliSeconds,
		ActualSetupMillis:     rec.ActualSetupMillis,
		ActualMilliSeconds:    rec.ActualMilliSeconds,
		QuantityProduced:      rec.QuantityProduced,
		QuantityRejected:      rec.QuantityRejected,
		ActualStartDate:       rec.ActualStartDate,
		ActualCompletionDate:  rec.ActualCompletionDate,
	}
}

func fromDomainMaterials(run *entities.ProductionRun) []materialRecord {
	records := make([]materialRecord, 0, len(run.Issuances)+len(run.Reservations)+len(run.Shortfalls))
	for _, iss := range run.Issuances {
		records = append(records, materialRecord{
			RunID:      string(run.ID),
			Kind:       kindIssuance,
			RecordID:   iss.ID,
			ProductID:  string(iss.ProductID),
			FacilityID: string(iss.FacilityID),
			Quantity:   iss.Quantity,
			Available:  decimal.Zero,
			LotID:      iss.LotID,
			CreatedAt:  iss.CreatedAt,
		})
	}
	for _, res := range run.Reservations {
		records = append(records, materialRecord{
			RunID:      string(run.ID),
			Kind:       kindReservation,
			RecordID:   res.ID,
			ProductID:  string(res.ProductID),
			FacilityID: string(res.FacilityID),
			Quantity:   res.Quantity,
			Available:  decimal.Zero,
			CreatedAt:  res.CreatedAt,
		})
	}
	for _, sf := range run.Shortfalls {
		records = append(records, materialRecord{
			RunID:      string(run.ID),
			Kind:       kindShortfall,
			ProductID:  string(sf.ProductID),
			FacilityID: string(sf.FacilityID),
			Quantity:   sf.Required,
			Available:  sf.Available,
		})
	}
	return records
}

func fromDomainWipEntry(e *entities.WipLedgerEntry) *wipLedgerRecord {
	return &wipLedgerRecord{
		ID:                 e.ID,
		MainRunID:          string(e.MainRunID),
		FinishedProductID:  string(e.FinishedProductID),
		FacilityID:         string(e.FacilityID),
		LotID:              e.LotID,
		WipPerUnitConsumed: e.WipPerUnitConsumed,
		QuantityDeclared:   e.QuantityDeclared,
		Timestamp:          e.Timestamp,
	}
}

func toDomainWipEntry(rec *wipLedgerRecord) *entities.WipLedgerEntry {
	return &entities.WipLedgerEntry{
		ID:                 rec.ID,
		MainRunID:          entities.RunID(rec.MainRunID),
		FinishedProductID:  entities.ProductID(rec.FinishedProductID),
		FacilityID:         entities.FacilityID(rec.FacilityID),
		LotID:              rec.LotID,
		WipPerUnitConsumed: rec.WipPerUnitConsumed,
		QuantityDeclared:   rec.QuantityDeclared,
		Timestamp:          rec.Timestamp,
	}
}
