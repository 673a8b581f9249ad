// Package metrics provides the centralized Prometheus registry for the
// optimization pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	EvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "evaluations_total",
		Help:      "Total number of strategy evaluations by stage and outcome",
	}, []string{"stage", "status"})
	PrunesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "prunes_total",
		Help:      "Total number of candidates pruned by stage",
	}, []string{"stage"})
	StageRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "stage_retries_total",
		Help:      "Total number of pipeline stage retries",
	}, []string{"stage"})
	EvalCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "eval_cache_hits_total",
		Help:      "Total evaluation cache hits",
	})
	EvalCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "eval_cache_misses_total",
		Help:      "Total evaluation cache misses",
	})
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_optimizer",
		Name:      "runs_total",
		Help:      "Total pipeline runs by terminal status",
	}, []string{"status"})
)

// Gauge metrics
var (
	ActiveStage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_optimizer",
		Name:      "active_stage",
		Help:      "Ordinal of the pipeline stage currently running, -1 when idle",
	})
	StageProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_optimizer",
		Name:      "stage_progress",
		Help:      "Fractional progress of the current stage",
	})
	BestCandidateScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "strategy_optimizer",
		Name:      "best_candidate_score",
		Help:      "Best composite score seen in the current run",
	})
	SurvivingCandidates = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strategy_optimizer",
		Name:      "surviving_candidates",
		Help:      "Candidates remaining after each stage",
	}, []string{"stage"})
)

// Histogram metrics
var (
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strategy_optimizer",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
	}, []string{"stage"})
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strategy_optimizer",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of single strategy evaluations in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		// Register counter metrics
		registry.MustRegister(EvaluationsTotal)
		registry.MustRegister(PrunesTotal)
		registry.MustRegister(StageRetriesTotal)
		registry.MustRegister(EvalCacheHitsTotal)
		registry.MustRegister(EvalCacheMissesTotal)
		registry.MustRegister(RunsTotal)

		// Register gauge metrics
		registry.MustRegister(ActiveStage)
		registry.MustRegister(StageProgress)
		registry.MustRegister(BestCandidateScore)
		registry.MustRegister(SurvivingCandidates)

		// Register histogram metrics
		registry.MustRegister(StageDuration)
		registry.MustRegister(EvaluationDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordEvaluation records one strategy evaluation outcome.
func RecordEvaluation(stage, status string, durationSeconds float64) {
	EvaluationsTotal.WithLabelValues(stage, status).Inc()
	EvaluationDuration.Observe(durationSeconds)
}

// RecordPrune records a pruned candidate.
func RecordPrune(stage string) {
	PrunesTotal.WithLabelValues(stage).Inc()
}

// RecordStageDuration records a completed stage duration.
func RecordStageDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageRetry records a stage retry.
func RecordStageRetry(stage string) {
	StageRetriesTotal.WithLabelValues(stage).Inc()
}

// RecordRun records a terminal pipeline run status.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}
