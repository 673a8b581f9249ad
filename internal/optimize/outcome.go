// Package optimize implements the exploration stages: quasi-random
// global search with successive-halving pruning and TPE-style local
// refinement.
package optimize

import (
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/perf"
)

// Status classifies how an evaluation resolved
type Status string

const (
	StatusScored Status = "scored"
	StatusPruned Status = "pruned"
	StatusFailed Status = "failed"
)

// Outcome is the explicit result of evaluating one parameter set.
// Every evaluation resolves to exactly one outcome; there is no
// exception-style control flow between stages.
type Outcome struct {
	Status     Status                    `json:"status"`
	Score      float64                   `json:"score"`
	RawScore   float64                   `json:"raw_score"`
	Metrics    models.PerformanceMetrics `json:"metrics"`
	Violations []string                  `json:"violations,omitempty"`
	Err        string                    `json:"error,omitempty"`
}

// failedOutcome wraps an evaluation error as a scored-at-sentinel
// outcome so rankings remain total.
func failedOutcome(err error) Outcome {
	return Outcome{
		Status:   StatusFailed,
		Score:    perf.ViolationSentinel,
		RawScore: perf.ViolationSentinel,
		Metrics:  models.EmptyPerformance(),
		Err:      err.Error(),
	}
}

// penalizedScore maps constraint violations onto the sentinel scale:
// more violations rank strictly worse.
func penalizedScore(violations int) float64 {
	return perf.ViolationSentinel - 1000.0*float64(violations)
}
