// Package metrics registers the prometheus instrumentation of the forecasting and decision core
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastsProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demandcast_forecasts_total",
		Help: "Number of item day forecasts produced",
	})

	ForecastFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demandcast_forecast_fallbacks_total",
		Help: "Number of item forecasts degraded to the prior by reason",
	}, []string{"reason"})

	SolverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demandcast_solver_runs_total",
		Help: "Number of optimizer solves by solver and outcome",
	}, []string{"solver", "status"})

	SolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "demandcast_solve_duration_seconds",
		Help:    "Wall clock duration of optimizer solves",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
	}, []string{"solver"})

	ElasticityUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demandcast_elasticity_updates_total",
		Help: "Number of elasticity observations by source and whether they updated the posterior",
	}, []string{"source", "applied"})

	RegimeWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demandcast_regime_change_warnings_total",
		Help: "Number of elasticity regime change warnings raised",
	})

	DataQualityFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demandcast_data_quality_flags_total",
		Help: "Number of records flagged for data quality by component",
	}, []string{"component"})

	FeedbackUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demandcast_feedback_updates_total",
		Help: "Number of learned parameter updates applied by the feedback controller by kind",
	}, []string{"kind"})

	TenantRuns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "demandcast_tenant_run_duration_seconds",
		Help:    "Duration of a full tenant pipeline run",
		Buckets: prometheus.DefBuckets,
	})
)

// Status labels shared by the solvers
const (
	StatusOptimal    = "optimal"
	StatusFeasible   = "feasible"
	StatusInfeasible = "infeasible"
	StatusTimeout    = "timeout"
	StatusCancelled  = "cancelled"
)
