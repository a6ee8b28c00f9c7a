package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/vsinha/mes/pkg/domain/entities"
)

func TestPrometheusRecorder_RecordOperation(t *testing.T) {
	r := NewPrometheusRecorder()

	r.RecordOperation("start_task", nil, 10*time.Millisecond)
	r.RecordOperation("start_task", &entities.TransitionError{RunID: "R1", Action: "start"}, time.Millisecond)
	r.RecordOperation("start_task", &entities.TransitionError{RunID: "R1", Action: "start"}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operationCounter.WithLabelValues("start_task", "ok", "none")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.operationCounter.WithLabelValues("start_task", "error", "invalid_transition")))
}

func TestPrometheusRecorder_DomainCounters(t *testing.T) {
	r := NewPrometheusRecorder()

	r.RecordTransition("Created", "Running")
	r.RecordShortfall("BOLT")
	r.RecordShortfall("BOLT")
	r.RecordWipDeclared("X", 70)
	r.RecordWipDeclared("X", 30)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitionCounter.WithLabelValues("Created", "Running")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.shortfallCounter.WithLabelValues("BOLT")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.wipConsumedTotal.WithLabelValues("X")))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "none", errorKind(nil))
	assert.Equal(t, "not_found", errorKind(entities.NewNotFound("run", "R1")))
	assert.Equal(t, "insufficient_wip", errorKind(&entities.WipCapacityError{}))
	assert.Equal(t, "cycle_detected", errorKind(&entities.CycleError{}))
}
