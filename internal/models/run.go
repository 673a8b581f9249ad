package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/strategy-optimizer/internal/params"
)

// RunStatus is the terminal state of an optimization run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// OptimizationRun is the persisted summary of one pipeline run
type OptimizationRun struct {
	ID               uuid.UUID       `json:"id"`
	StrategyName     string          `json:"strategy_name"`
	Status           RunStatus       `json:"status"`
	Degraded         bool            `json:"degraded"`
	CandidateCount   int             `json:"candidate_count"`
	RecommendedCount int             `json:"recommended_count"`
	BestScore        decimal.Decimal `json:"best_score"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewOptimizationRun starts a run record
func NewOptimizationRun(id uuid.UUID, strategyName string) *OptimizationRun {
	return &OptimizationRun{
		ID:           id,
		StrategyName: strategyName,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
}

// ParameterRecord is the persisted form of a validated candidate
type ParameterRecord struct {
	ID            uuid.UUID       `json:"id"`
	RunID         uuid.UUID       `json:"run_id"`
	Params        params.Set      `json:"params"`
	Score         decimal.Decimal `json:"score"`
	CVScore       decimal.Decimal `json:"cv_score"`
	OOSScore      decimal.Decimal `json:"oos_score"`
	Robustness    decimal.Decimal `json:"robustness"`
	CombinedScore decimal.Decimal `json:"combined_score"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	SortinoRatio  decimal.Decimal `json:"sortino_ratio"`
	FinalRanking  int             `json:"final_ranking"`
	Recommended   bool            `json:"recommended"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ParameterRecordFromCandidate converts a validated candidate for storage
func ParameterRecordFromCandidate(runID uuid.UUID, c *Candidate) *ParameterRecord {
	return &ParameterRecord{
		ID:            c.ID,
		RunID:         runID,
		Params:        c.Params.Clone(),
		Score:         decimal.NewFromFloat(c.Score),
		CVScore:       decimal.NewFromFloat(c.CVScore),
		OOSScore:      decimal.NewFromFloat(c.OOSScore),
		Robustness:    decimal.NewFromFloat(c.Robustness),
		CombinedScore: decimal.NewFromFloat(c.CombinedScore),
		MaxDrawdown:   decimal.NewFromFloat(c.Metrics.MaxDrawdown),
		ProfitFactor:  decimal.NewFromFloat(c.Metrics.ProfitFactor),
		SortinoRatio:  decimal.NewFromFloat(c.Metrics.SortinoRatio),
		FinalRanking:  c.FinalRanking,
		Recommended:   c.Recommended,
		CreatedAt:     c.CreatedAt,
	}
}
