package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/vsinha/mes/pkg/application/services/production"
	"github.com/vsinha/mes/pkg/application/services/wip"
	"github.com/vsinha/mes/pkg/domain/entities"
	"github.com/vsinha/mes/pkg/infrastructure/metrics"
	"github.com/vsinha/mes/pkg/interfaces/cli/output"
)

// RunCommand drives one production run through its routing: it commits materials,
// executes every task at its estimated times, declares finished goods out of a WIP
// run and closes the run.
type RunCommand struct {
	config Config
}

// NewRunCommand creates a new run command with the given configuration
func NewRunCommand(config Config) *RunCommand {
	return &RunCommand{config: config}
}

// finishedDeclare is one PRODUCT=QTY item of the -declare flag
type finishedDeclare struct {
	productID entities.ProductID
	quantity  decimal.Decimal
}

// Execute runs the production run
func (c *RunCommand) Execute(ctx context.Context) error {
	if c.config.Help {
		fmt.Fprint(c.config.out(), usage)
		return nil
	}

	if err := c.validateInputs(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	quantity, err := parseQuantity(c.config.Quantity)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	declares, err := parseDeclares(c.config.Declare)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	cfg, err := c.config.settings()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ds, err := c.config.loadDataset()
	if err != nil {
		return err
	}
	recorder := newRecorder(cfg)
	env, err := NewEnvironment(ctx, cfg, ds, logger, recorder)
	if err != nil {
		return err
	}

	startTime := time.Now()
	report, err := c.drive(ctx, env, entities.FacilityID(cfg.Facility), quantity, declares)
	if err != nil {
		return err
	}
	elapsed := time.Since(startTime)

	if err := c.writeMetrics(recorder); err != nil {
		return err
	}

	return output.WriteRun(c.config.out(), report, output.Config{
		Format:    c.config.Format,
		OutputDir: c.config.OutputDir,
		Verbose:   c.config.Verbose,
		Elapsed:   elapsed,
	})
}

func (c *RunCommand) validateInputs() error {
	if c.config.Product == "" {
		return fmt.Errorf("must specify -product")
	}
	if c.config.Routing == "" {
		return fmt.Errorf("must specify -routing")
	}
	return nil
}

func (c *RunCommand) drive(ctx context.Context, env *Environment, facility entities.FacilityID, quantity decimal.Decimal, declares []finishedDeclare) (*output.RunReport, error) {
	svc := env.Production

	run, err := svc.CreateRun(ctx, production.CreateRunRequest{
		ProductID:  entities.ProductID(c.config.Product),
		Quantity:   quantity,
		FacilityID: facility,
		RoutingID:  entities.RoutingID(c.config.Routing),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating run: %w", err)
	}
	runID := run.ID

	if _, err := svc.ScheduleRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("error scheduling run: %w", err)
	}
	if _, err := svc.ConfirmRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("error confirming run: %w", err)
	}

	if c.config.Reserve {
		if _, err := svc.ReserveMaterials(ctx, runID); err != nil {
			return nil, fmt.Errorf("error reserving materials: %w", err)
		}
	}
	issuance, err := svc.IssueMaterials(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("error issuing materials: %w", err)
	}

	for _, task := range run.Tasks {
		if _, err := svc.StartTask(ctx, task.ID); err != nil {
			return nil, fmt.Errorf("error starting task %d: %w", task.SequenceNum, err)
		}
		decl := entities.TaskDeclaration{
			SetupMillis:      task.EstimatedSetupMillis,
			RunMillis:        task.EstimatedDurationMillis(quantity) - task.EstimatedSetupMillis,
			QuantityProduced: quantity,
			QuantityRejected: decimal.Zero,
		}
		if _, err := svc.CompleteTask(ctx, task.ID, decl); err != nil {
			return nil, fmt.Errorf("error completing task %d: %w", task.SequenceNum, err)
		}
	}

	report := &output.RunReport{Issuance: issuance}

	if run.IsWipRun {
		for _, d := range declares {
			res, err := env.Wip.DeclareAndProduce(ctx, wip.DeclareRequest{
				MainRunID:         runID,
				FinishedProductID: d.productID,
				Quantity:          d.quantity,
			})
			if err != nil {
				return nil, fmt.Errorf("error declaring %s: %w", d.productID, err)
			}
			report.Declares = append(report.Declares, *res)
		}
		balance, err := env.Wip.Balance(ctx, runID)
		if err != nil {
			return nil, err
		}
		report.Wip = &balance
	} else if len(declares) > 0 {
		return nil, fmt.Errorf("-declare requires a WIP template product, %s is not", run.ProductID)
	}

	if _, err := svc.CloseRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("error closing run: %w", err)
	}

	summary, err := svc.Summary(ctx, runID)
	if err != nil {
		return nil, err
	}
	report.Summary = summary

	evts, err := env.Events.ReadEvents(string(runID), 0)
	if err != nil {
		return nil, err
	}
	report.Events = output.EventLines(evts)
	return report, nil
}

func (c *RunCommand) writeMetrics(recorder metrics.Recorder) error {
	if c.config.MetricsFile == "" {
		return nil
	}
	prom, ok := recorder.(*metrics.PrometheusRecorder)
	if !ok {
		return nil
	}
	if err := prometheus.WriteToTextfile(c.config.MetricsFile, prom.GetRegistry()); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// parseDeclares reads "PANEL-A=3,PANEL-B=2"
func parseDeclares(s string) ([]finishedDeclare, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []finishedDeclare
	for _, item := range strings.Split(s, ",") {
		product, qty, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || product == "" {
			return nil, fmt.Errorf("invalid declare %q, expected PRODUCT=QTY", item)
		}
		q, err := parseQuantity(qty)
		if err != nil {
			return nil, fmt.Errorf("invalid declare %q: %w", item, err)
		}
		out = append(out, finishedDeclare{productID: entities.ProductID(product), quantity: q})
	}
	return out, nil
}
