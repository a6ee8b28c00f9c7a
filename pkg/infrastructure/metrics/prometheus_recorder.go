package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vsinha/mes/pkg/domain/entities"
)

// PrometheusRecorder is a Prometheus implementation of Recorder
type PrometheusRecorder struct {
	registry *prometheus.Registry

	operationDurationSeconds *prometheus.HistogramVec
	operationCounter         *prometheus.CounterVec
	transitionCounter        *prometheus.CounterVec
	shortfallCounter         *prometheus.CounterVec
	wipConsumedTotal         *prometheus.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with its own registry
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	r := &PrometheusRecorder{
		registry: registry,
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mes_operation_duration_seconds",
			Help:    "Duration of production execution operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		operationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_operation_total",
			Help: "Total production execution operations by outcome and error kind.",
		}, []string{"operation", "outcome", "kind"}),
		transitionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_run_transition_total",
			Help: "Total production run status transitions.",
		}, []string{"from", "to"}),
		shortfallCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_material_shortfall_total",
			Help: "Total material shortfalls by product.",
		}, []string{"product_id"}),
		wipConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_wip_consumed_total",
			Help: "WIP quantity consumed by declare-and-produce, by finished product.",
		}, []string{"finished_product_id"}),
	}

	registry.MustRegister(r.operationDurationSeconds)
	registry.MustRegister(r.operationCounter)
	registry.MustRegister(r.transitionCounter)
	registry.MustRegister(r.shortfallCounter)
	registry.MustRegister(r.wipConsumedTotal)

	return r
}

// GetRegistry returns the Prometheus registry
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordOperation(operation string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	r.operationDurationSeconds.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
	r.operationCounter.WithLabelValues(operation, outcome, errorKind(err)).Inc()
}

func (r *PrometheusRecorder) RecordTransition(from, to string) {
	r.transitionCounter.WithLabelValues(from, to).Inc()
}

func (r *PrometheusRecorder) RecordShortfall(productID string) {
	r.shortfallCounter.WithLabelValues(productID).Inc()
}

func (r *PrometheusRecorder) RecordWipDeclared(finishedProductID string, wipConsumed float64) {
	r.wipConsumedTotal.WithLabelValues(finishedProductID).Add(wipConsumed)
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, entities.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, entities.ErrCycleDetected):
		return "cycle_detected"
	case errors.Is(err, entities.ErrMissingCost):
		return "missing_cost"
	case errors.Is(err, entities.ErrInsufficientWip):
		return "insufficient_wip"
	case errors.Is(err, entities.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, entities.ErrNotFound):
		return "not_found"
	case errors.Is(err, entities.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, entities.ErrConcurrentUpdate):
		return "concurrent_update"
	default:
		return "internal"
	}
}
