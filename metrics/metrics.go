package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunsStartedTotal tracks the total number of evaluation runs started.
var RunsStartedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_runs_started_total",
		Help: "Total evaluation runs started",
	},
	[]string{"queue"},
)

// RunsFinishedTotal tracks the total number of runs that reached a terminal status.
var RunsFinishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_runs_finished_total",
		Help: "Total runs that reached a terminal status",
	},
	[]string{"queue", "status"},
)

// TasksPlannedTotal tracks the total number of evaluation tasks planned.
var TasksPlannedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_tasks_planned_total",
		Help: "Total evaluation tasks planned",
	},
	[]string{"queue"},
)

// TaskFailuresTotal tracks the total number of tasks whose evaluation failed.
var TaskFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_task_failures_total",
		Help: "Total tasks whose evaluation failed",
	},
	[]string{"queue"},
)

// VerdictsTotal tracks recorded verdicts.
var VerdictsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_verdicts_total",
		Help: "Total verdicts recorded",
	},
	[]string{"queue", "verdict"},
)

// EventsProjectedTotal tracks the total number of events folded into views.
var EventsProjectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_events_projected_total",
		Help: "Total events folded into views",
	},
	[]string{"entity_type"},
)

// ProjectionErrorsTotal tracks the total number of projection handler errors.
var ProjectionErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "evalrun_projection_errors_total",
		Help: "Total projection handler errors",
	},
	[]string{"entity_type"},
)

// ActiveRuns tracks the current number of runs being driven.
var ActiveRuns = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "evalrun_active_runs",
		Help: "Current runs being driven",
	},
)

// EvaluatorDuration tracks evaluator call latency.
var EvaluatorDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "evalrun_evaluator_duration_seconds",
		Help:    "Evaluator call latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"judge"},
)
