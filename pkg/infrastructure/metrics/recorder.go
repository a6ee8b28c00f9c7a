package metrics

import (
	"time"
)

// Recorder records production execution metrics
type Recorder interface {
	// RecordOperation records the outcome and latency of a caller-facing operation.
	RecordOperation(operation string, err error, elapsed time.Duration)
	// RecordTransition counts a run status change.
	RecordTransition(from, to string)
	// RecordShortfall counts a material shortfall for a product.
	RecordShortfall(productID string)
	// RecordWipDeclared adds WIP consumed by a declare-and-produce.
	RecordWipDeclared(finishedProductID string, wipConsumed float64)
}

// NoopRecorder discards all metrics
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecordOperation(string, error, time.Duration) {}
func (NoopRecorder) RecordTransition(string, string)              {}
func (NoopRecorder) RecordShortfall(string)                       {}
func (NoopRecorder) RecordWipDeclared(string, float64)            {}

// Outcome maps an operation error to a low-cardinality label value
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
