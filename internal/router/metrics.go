package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики роутера. Регистрируются в default registry, отдаются через
// promhttp в cmd-процессах.
var (
	messagesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainflow_router_messages_discarded_total",
		Help: "Task messages discarded without execution, by reason.",
	}, []string{"reason"})

	stepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainflow_router_steps_executed_total",
		Help: "Step executions by step kind and outcome.",
	}, []string{"step_kind", "outcome"})

	workflowsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainflow_router_workflows_finished_total",
		Help: "Workflows moved to a terminal status.",
	}, []string{"status"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainflow_router_step_duration_seconds",
		Help:    "Handler execution duration by step kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step_kind"})
)
