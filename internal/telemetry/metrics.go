package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка шагов. Экспонируются через promhttp в каждом демоне.
var (
	stepExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_step_executions_total",
		Help: "Step invocations by step name and resulting phase.",
	}, []string{"step", "phase"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convoy_step_duration_seconds",
		Help:    "Wall-clock duration of one step invocation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	pollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_poll_ticks_total",
		Help: "Poll ticks by step name and async state.",
	}, []string{"step", "state"})

	stepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_step_errors_total",
		Help: "Step failures by error type.",
	}, []string{"error_type"})
)

// ObserveStep учитывает один вызов шага.
func ObserveStep(step, phase string, d time.Duration) {
	stepExecutions.WithLabelValues(step, phase).Inc()
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// ObservePollTick учитывает один poll-тик.
func ObservePollTick(step, state string) {
	pollTicks.WithLabelValues(step, state).Inc()
}

// ObserveStepError учитывает сбой шага.
func ObserveStepError(errorType string) {
	stepErrors.WithLabelValues(errorType).Inc()
}
