package prometheus

import (
	"time"

	"github.com/floworc/floworc/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	nodesExecuted *prometheus.CounterVec
	nodeRetries   *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec

	compensations *prometheus.CounterVec

	activeRuns   prometheus.Gauge
	nestingDepth prometheus.Histogram
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		runsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floworc_runs_submitted_total",
				Help: "Total number of runs submitted",
			},
			[]string{"graph"},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floworc_runs_completed_total",
				Help: "Total number of runs finished, by terminal status",
			},
			[]string{"graph", "status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floworc_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"graph"},
		),
		nodesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floworc_nodes_executed_total",
				Help: "Total number of node executions, by terminal status",
			},
			[]string{"graph", "status"},
		),
		nodeRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floworc_node_retries_total",
				Help: "Total number of node retry attempts",
			},
			[]string{"graph", "node"},
		),
		nodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floworc_node_duration_seconds",
				Help:    "Node execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"graph"},
		),
		compensations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floworc_compensations_total",
				Help: "Total number of compensation actions invoked",
			},
			[]string{"graph", "outcome"},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "floworc_active_runs",
				Help: "Number of currently active runs",
			},
		),
		nestingDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "floworc_run_nesting_depth",
				Help:    "Call-stack depth of started runs",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(graphName string) {
	c.runsSubmitted.WithLabelValues(graphName).Inc()
}

// RecordRunCompleted records a finished run and its duration
func (c *Collector) RecordRunCompleted(graphName string, status domain.ExecutionStatus, duration time.Duration) {
	c.runsCompleted.WithLabelValues(graphName, string(status)).Inc()
	c.runDuration.WithLabelValues(graphName).Observe(duration.Seconds())
}

// RecordNodeExecuted records a node execution outcome and its duration
func (c *Collector) RecordNodeExecuted(graphName string, status domain.ExecutionStatus, duration time.Duration) {
	c.nodesExecuted.WithLabelValues(graphName, string(status)).Inc()
	c.nodeDuration.WithLabelValues(graphName).Observe(duration.Seconds())
}

// RecordNodeRetry records one retry attempt of a node
func (c *Collector) RecordNodeRetry(graphName, nodeID string) {
	c.nodeRetries.WithLabelValues(graphName, nodeID).Inc()
}

// RecordCompensation records one compensation action and whether it failed
func (c *Collector) RecordCompensation(graphName string, failed bool) {
	outcome := "succeeded"
	if failed {
		outcome = "failed"
	}
	c.compensations.WithLabelValues(graphName, outcome).Inc()
}

// SetActiveRuns sets the number of currently active runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// ObserveNestingDepth records the call-stack depth of a started run
func (c *Collector) ObserveNestingDepth(depth int) {
	c.nestingDepth.Observe(float64(depth))
}
