package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/strategy-optimizer/internal/params"
)

// CandidateSource identifies the pipeline stage that produced a candidate
type CandidateSource string

const (
	SourceGlobalSearch    CandidateSource = "global_search"
	SourceLocalRefinement CandidateSource = "local_refinement"
	SourceTimeSeriesCV    CandidateSource = "timeseries_cv"
	SourceWalkForward     CandidateSource = "walk_forward"
)

// Candidate is a parameter set moving through the pipeline, annotated
// with the scores each stage attached to it.
type Candidate struct {
	ID            uuid.UUID          `json:"id"`
	Params        params.Set         `json:"params"`
	Score         float64            `json:"score"`
	Metrics       PerformanceMetrics `json:"metrics"`
	Source        CandidateSource    `json:"source"`
	StabilityCV   float64            `json:"stability_cv"`
	FoldScores    []float64          `json:"fold_scores,omitempty"`
	CVScore       float64            `json:"cv_score"`
	OOSScore      float64            `json:"oos_score"`
	Robustness    float64            `json:"robustness"`
	CombinedScore float64            `json:"combined_score"`
	FinalRanking  int                `json:"final_ranking"`
	Recommended   bool               `json:"recommended"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewCandidate creates a candidate with a fresh identity
func NewCandidate(set params.Set, source CandidateSource) *Candidate {
	return &Candidate{
		ID:        uuid.New(),
		Params:    set,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy so stages can annotate without aliasing
func (c *Candidate) Clone() *Candidate {
	dup := *c
	dup.Params = c.Params.Clone()
	if c.FoldScores != nil {
		dup.FoldScores = append([]float64{}, c.FoldScores...)
	}
	return &dup
}
