// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	executionsTotalCounter  *prometheus.CounterVec
	stepsTotalCounter       *prometheus.CounterVec
	stepDurationMetric      prometheus.Histogram
	stepRetriesCounter      prometheus.Counter
	activeExecutionsMetric  prometheus.Gauge
	documentsRegisteredStat prometheus.Counter
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		executionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "executions_total",
				Help: "Total number of prompt executions by terminal status.",
			},
			[]string{"status"},
		)

		stepsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steps_total",
				Help: "Total number of step attempts by result status.",
			},
			[]string{"status"},
		)

		stepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "step_execution_duration_seconds",
				Help:    "Duration of step dispatch calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		stepRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "step_retries_total",
				Help: "Total number of retried step attempts.",
			},
		)

		activeExecutionsMetric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_executions",
				Help: "Number of executions currently in flight.",
			},
		)

		documentsRegisteredStat = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_registered_total",
				Help: "Total number of documents accepted for execution.",
			},
		)

		prometheus.MustRegister(
			executionsTotalCounter,
			stepsTotalCounter,
			stepDurationMetric,
			stepRetriesCounter,
			activeExecutionsMetric,
			documentsRegisteredStat,
		)

		// Make the counter vectors visible at /metrics before the
		// first increment.
		for _, status := range []domain.PromptStatus{
			domain.PromptCompleted,
			domain.PromptFailed,
			domain.PromptCancelled,
		} {
			executionsTotalCounter.WithLabelValues(string(status))
		}

		for _, status := range []domain.StepStatus{
			domain.StepCompleted,
			domain.StepFailed,
		} {
			stepsTotalCounter.WithLabelValues(string(status))
		}
	})
}

func IncExecutionStatus(status domain.PromptStatus) {
	Init()
	executionsTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncStepStatus(status domain.StepStatus) {
	Init()
	stepsTotalCounter.WithLabelValues(string(status)).Inc()
}

func ObserveStepDuration(d time.Duration) {
	Init()
	stepDurationMetric.Observe(d.Seconds())
}

func IncStepRetries() {
	Init()
	stepRetriesCounter.Inc()
}

func IncActiveExecutions() {
	Init()
	activeExecutionsMetric.Inc()
}

func DecActiveExecutions() {
	Init()
	activeExecutionsMetric.Dec()
}

func IncDocumentsRegistered() {
	Init()
	documentsRegisteredStat.Inc()
}
