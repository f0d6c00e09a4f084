// Package metrics exposes Prometheus instrumentation for the workflow
// engine: lifecycle counters, node execution timings, and the size of the
// active instance population.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the engine's metrics.
type Collector struct {
	workflowsCreated *prometheus.CounterVec
	workflowOutcomes *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec
	nodeExecutions   *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	executionErrors  *prometheus.CounterVec
	activeWorkflows  prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the engine metrics under the given namespace on
// the default Prometheus registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.workflowsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_created_total",
			Help:      "Total number of workflow instances created",
		},
		[]string{"definition"},
	)

	c.workflowOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_outcomes_total",
			Help:      "Total number of workflows reaching a terminal status",
		},
		[]string{"status"},
	)

	c.workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Time from workflow start to terminal status",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600, 86400},
		},
		[]string{"status"},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of lifecycle state transitions",
		},
		[]string{"from_status", "to_status"},
	)

	c.nodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node visits, by outcome",
		},
		[]string{"node_type", "status"},
	)

	c.nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node action execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"node_type"},
	)

	c.executionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_errors_total",
			Help:      "Total number of node execution errors",
		},
		[]string{"error_type", "recoverable"},
	)

	c.activeWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workflows",
			Help:      "Number of workflows currently in the active status",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordWorkflowCreated counts a new instance of the named definition.
func (c *Collector) RecordWorkflowCreated(definition string) {
	c.workflowsCreated.WithLabelValues(definition).Inc()
}

// RecordStateTransition counts a lifecycle transition and keeps the
// active gauge in step with it.
func (c *Collector) RecordStateTransition(fromStatus, toStatus string) {
	c.stateTransitions.WithLabelValues(fromStatus, toStatus).Inc()
	if toStatus == "active" && fromStatus != "active" {
		c.activeWorkflows.Inc()
	}
	if fromStatus == "active" && toStatus != "active" {
		c.activeWorkflows.Dec()
	}
}

// RecordNodeExecution counts one node visit and observes its duration.
func (c *Collector) RecordNodeExecution(nodeType, status string, duration time.Duration) {
	c.nodeExecutions.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordWorkflowOutcome counts a terminal status and observes the
// workflow's total duration.
func (c *Collector) RecordWorkflowOutcome(status string, duration time.Duration) {
	c.workflowOutcomes.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordError counts a node execution error by classification.
func (c *Collector) RecordError(errorType string, recoverable bool) {
	label := "false"
	if recoverable {
		label = "true"
	}
	c.executionErrors.WithLabelValues(errorType, label).Inc()
}
