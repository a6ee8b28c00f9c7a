package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vsinha/mes/pkg/application/dto"
	"github.com/vsinha/mes/pkg/infrastructure/events"
)

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	Verbose   bool
	Elapsed   time.Duration
}

// RunReport is everything the run command produced for one production run
type RunReport struct {
	Summary  dto.RunSummary      `json:"summary"`
	Issuance *dto.IssuanceResult `json:"issuance,omitempty"`
	Declares []dto.DeclareResult `json:"declares,omitempty"`
	Wip      *dto.WipBalance     `json:"wip,omitempty"`
	Events   []EventLine         `json:"events"`
}

// EventLine is the flattened view of a stored event
type EventLine struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventLines flattens stored events for rendering
func EventLines(evts []events.Event) []EventLine {
	lines := make([]EventLine, 0, len(evts))
	for _, e := range evts {
		lines = append(lines, EventLine{Type: e.Type(), Timestamp: e.Timestamp(), Data: e.Data()})
	}
	return lines
}

// WriteCost renders a cost simulation
func WriteCost(w io.Writer, res *dto.Resolution, config Config) error {
	switch config.Format {
	case "text":
		writeCostText(w, res, config)
		return nil
	case "json":
		return writeJSON(w, res, config, "cost_simulation.json")
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

// WriteRun renders a run report
func WriteRun(w io.Writer, report *RunReport, config Config) error {
	switch config.Format {
	case "text":
		writeRunText(w, report, config)
		return nil
	case "json":
		return writeJSON(w, report, config, "run_report.json")
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

func writeCostText(w io.Writer, res *dto.Resolution, config Config) {
	fmt.Fprintf(w, "Cost Simulation: %s x %s (%s)\n", res.ProductID, res.Quantity, res.CurrencyID)
	fmt.Fprintf(w, "==============================\n\n")

	fmt.Fprintf(w, "%-24s %-6s %-10s %-12s %-12s\n", "Product", "Level", "Qty", "Unit Cost", "Total Cost")
	fmt.Fprintf(w, "%-24s %-6s %-10s %-12s %-12s\n",
		"------------------------", "------", "----------", "------------", "------------")
	for _, c := range res.Displayed() {
		name := strings.Repeat("  ", c.Level) + string(c.ProductID)
		fmt.Fprintf(w, "%-24s %-6d %-10s %-12s %-12s\n",
			name, c.Level, c.Quantity.String(), c.UnitCost.StringFixed(2), c.TotalCost.StringFixed(2))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %s %s\n", res.TotalCost().StringFixed(2), res.CurrencyID)

	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	if config.Verbose {
		fmt.Fprintf(w, "Simulation Time: %v\n", config.Elapsed)
	}
}

func writeRunText(w io.Writer, report *RunReport, config Config) {
	s := report.Summary
	fmt.Fprintf(w, "Production Run %s\n", s.RunID)
	fmt.Fprintf(w, "==============================\n\n")
	fmt.Fprintf(w, "Product: %s\n", s.ProductID)
	fmt.Fprintf(w, "Status: %s\n", s.Status)
	fmt.Fprintf(w, "Quantity: %s produced, %s rejected of %s\n",
		s.QuantityProduced, s.QuantityRejected, s.QuantityToProduce)
	fmt.Fprintf(w, "Estimated: %s -> %s\n",
		s.EstimatedStartDate.Format(time.RFC3339), s.EstimatedCompletionDate.Format(time.RFC3339))
	fmt.Fprintf(w, "Materials: %s\n\n", s.MaterialMode)

	fmt.Fprintf(w, "%-6s %-16s %-10s %-10s %-10s\n", "Seq", "Task", "Status", "Produced", "Rejected")
	fmt.Fprintf(w, "%-6s %-16s %-10s %-10s %-10s\n", "------", "----------------", "----------", "----------", "----------")
	for _, t := range s.Tasks {
		fmt.Fprintf(w, "%-6d %-16s %-10s %-10s %-10s\n",
			t.SequenceNum, t.Name, t.Status, t.QuantityProduced, t.QuantityRejected)
	}
	fmt.Fprintln(w)

	if iss := report.Issuance; iss != nil {
		fmt.Fprintf(w, "Material %s:\n", iss.Mode)
		fmt.Fprintf(w, "%-16s %-10s %-10s\n", "Product", "Required", "Committed")
		for _, req := range iss.Requirements {
			committed := iss.IssuedQuantity(req.ProductID).Add(iss.ReservedQuantity(req.ProductID))
			fmt.Fprintf(w, "%-16s %-10s %-10s\n", req.ProductID, req.QuantityRequired, committed)
		}
		for _, sf := range iss.Shortfalls {
			fmt.Fprintf(w, "Shortage: %s\n", sf.Error())
		}
		for _, msg := range iss.Errors {
			fmt.Fprintf(w, "Error: %s\n", msg)
		}
		fmt.Fprintln(w)
	}

	for _, d := range report.Declares {
		fmt.Fprintf(w, "Declared %s x %s from WIP (consumed %s, remaining %s)\n",
			d.Entry.FinishedProductID, d.Entry.QuantityDeclared, d.RequiredWip, d.RemainingWip)
	}
	if b := report.Wip; b != nil {
		fmt.Fprintf(w, "WIP: capacity %s, consumed %s, available %s\n\n", b.Capacity, b.Consumed, b.Available)
	}

	if config.Verbose {
		fmt.Fprintf(w, "Events:\n")
		for _, e := range report.Events {
			fmt.Fprintf(w, "  %s %s\n", e.Timestamp.Format(time.RFC3339), e.Type)
		}
		fmt.Fprintf(w, "Run Time: %v\n", config.Elapsed)
	}
}

func writeJSON(w io.Writer, v interface{}, config Config, name string) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if config.OutputDir == "" {
		fmt.Fprintln(w, string(jsonData))
		return nil
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(config.OutputDir, name)
	if err := os.WriteFile(filename, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	if config.Verbose {
		fmt.Fprintf(w, "JSON results saved to: %s\n", filename)
	}
	return nil
}
