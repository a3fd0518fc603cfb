package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqgate_evaluations_total",
			Help: "Total requirement evaluations by final decision status.",
		},
		[]string{"status"},
	)
	engineTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqgate_engine_timeouts_total",
			Help: "Engine calls that exceeded the per-call deadline.",
		},
	)
	schemaViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqgate_schema_violations_total",
			Help: "Engine outputs rejected by the decision contract.",
		},
	)
	decisionLogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqgate_decision_log_failures_total",
			Help: "Decision log appends that exhausted their retry budget.",
		},
	)
)
