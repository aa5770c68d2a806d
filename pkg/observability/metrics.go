// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the workflow engine
// (§2.2 DOMAIN STACK: "prometheus -> CounterVec/HistogramVec/GaugeVec for
// stage transitions/lock wait/checkpoint latency/retry counts/scheduler
// tick durations").
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Agent metrics: one Process call per stage per workflow.
	agentCalls        *prometheus.CounterVec
	agentCallDuration *prometheus.HistogramVec
	agentErrors       *prometheus.CounterVec

	// Workflow/stage metrics.
	stageTransitions *prometheus.CounterVec
	activeWorkflows  prometheus.Gauge

	// Lock Manager metrics.
	lockWaitDuration *prometheus.HistogramVec
	lockHoldDuration *prometheus.HistogramVec
	lockTimeouts     *prometheus.CounterVec

	// Checkpoint Store metrics.
	checkpointWriteDuration *prometheus.HistogramVec
	checkpointsWritten      *prometheus.CounterVec

	// Retry Policy metrics.
	retryAttempts *prometheus.CounterVec

	// Scheduler metrics.
	schedulerTickDuration *prometheus.HistogramVec
	schedulerTaskErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initAgentMetrics()
	m.initWorkflowMetrics()
	m.initLockMetrics()
	m.initCheckpointMetrics()
	m.initRetryMetrics()
	m.initSchedulerMetrics()

	return m, nil
}

func (m *Metrics) initAgentMetrics() {
	m.agentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"stage"},
	)

	m.agentCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "agent",
			Name:      "call_duration_seconds",
			Help:      "Agent invocation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to 163s
		},
		[]string{"stage"},
	)

	m.agentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "agent",
			Name:      "errors_total",
			Help:      "Total number of agent errors",
		},
		[]string{"stage", "error_kind"},
	)

	m.registry.MustRegister(m.agentCalls, m.agentCallDuration, m.agentErrors)
}

func (m *Metrics) initWorkflowMetrics() {
	m.stageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "workflow",
			Name:      "stage_transitions_total",
			Help:      "Total number of stage transitions performed by Advance",
		},
		[]string{"from_stage", "to_stage"},
	)

	m.activeWorkflows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "workflow",
			Name:      "active",
			Help:      "Number of non-terminal workflows currently tracked",
		},
	)

	m.registry.MustRegister(m.stageTransitions, m.activeWorkflows)
}

func (m *Metrics) initLockMetrics() {
	m.lockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting to acquire a workflow lock",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"resource"},
	)

	m.lockHoldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "lock",
			Name:      "hold_duration_seconds",
			Help:      "Time a workflow lock was held before release",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"resource"},
	)

	m.lockTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "lock",
			Name:      "timeouts_total",
			Help:      "Total number of lock acquisitions that timed out",
		},
		[]string{"resource"},
	)

	m.registry.MustRegister(m.lockWaitDuration, m.lockHoldDuration, m.lockTimeouts)
}

func (m *Metrics) initCheckpointMetrics() {
	m.checkpointWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "checkpoint",
			Name:      "write_duration_seconds",
			Help:      "Checkpoint Save call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2s
		},
		[]string{"kind"},
	)

	m.checkpointsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "checkpoint",
			Name:      "writes_total",
			Help:      "Total number of checkpoints written",
		},
		[]string{"kind"},
	)

	m.registry.MustRegister(m.checkpointWriteDuration, m.checkpointsWritten)
}

func (m *Metrics) initRetryMetrics() {
	m.retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of retry attempts, labeled by outcome",
		},
		[]string{"op", "outcome"},
	)

	m.registry.MustRegister(m.retryAttempts)
}

func (m *Metrics) initSchedulerMetrics() {
	m.schedulerTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler task run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"task"},
	)

	m.schedulerTaskErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "scheduler",
			Name:      "task_errors_total",
			Help:      "Total number of scheduler task failures",
		},
		[]string{"task"},
	)

	m.registry.MustRegister(m.schedulerTickDuration, m.schedulerTaskErrors)
}

// RecordAgentCall records an agent invocation.
func (m *Metrics) RecordAgentCall(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(stage).Inc()
	m.agentCallDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordAgentError records an agent error, labeled by its wfkind.Kind name.
func (m *Metrics) RecordAgentError(stage, errorKind string) {
	if m == nil {
		return
	}
	m.agentErrors.WithLabelValues(stage, errorKind).Inc()
}

// RecordStageTransition records one Advance call's from/to stage pair.
func (m *Metrics) RecordStageTransition(fromStage, toStage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(fromStage, toStage).Inc()
}

// SetActiveWorkflows sets the current count of non-terminal workflows.
func (m *Metrics) SetActiveWorkflows(count int) {
	if m == nil {
		return
	}
	m.activeWorkflows.Set(float64(count))
}

// RecordLockWait records time spent waiting to acquire a lock.
func (m *Metrics) RecordLockWait(resourceName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.WithLabelValues(resourceName).Observe(duration.Seconds())
}

// RecordLockHold records how long a lock was held before release.
func (m *Metrics) RecordLockHold(resourceName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lockHoldDuration.WithLabelValues(resourceName).Observe(duration.Seconds())
}

// RecordLockTimeout records a lock acquisition that timed out.
func (m *Metrics) RecordLockTimeout(resourceName string) {
	if m == nil {
		return
	}
	m.lockTimeouts.WithLabelValues(resourceName).Inc()
}

// RecordCheckpointWrite records one Checkpoint Store Save call.
func (m *Metrics) RecordCheckpointWrite(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkpointsWritten.WithLabelValues(kind).Inc()
	m.checkpointWriteDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRetryAttempt records one Retry Policy attempt outcome
// ("success", "retry", or "exhausted").
func (m *Metrics) RecordRetryAttempt(op, outcome string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(op, outcome).Inc()
}

// RecordSchedulerTick records one scheduler task run's duration.
func (m *Metrics) RecordSchedulerTick(task string, duration time.Duration) {
	if m == nil {
		return
	}
	m.schedulerTickDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordSchedulerTaskError records a scheduler task failure.
func (m *Metrics) RecordSchedulerTaskError(task string) {
	if m == nil {
		return
	}
	m.schedulerTaskErrors.WithLabelValues(task).Inc()
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint. No
// HTTP transport is wired in this repository (§1 Non-goals); this exists,
// like wfkind.Kind.HTTPStatus, for a future adapter's convenience (§6.3).
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
