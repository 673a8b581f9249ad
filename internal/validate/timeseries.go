package validate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

// StageTimeSeriesCV is the seed-derivation identifier for this stage
const StageTimeSeriesCV = "timeseries_cv"

// TimeSeriesConfig configures purged K-fold cross-validation
type TimeSeriesConfig struct {
	Folds                int
	TestSize             float64
	PurgeFraction        float64 // fraction of series length purged around tests
	EmbargoMultiple      float64 // times the average holding period
	DefaultHoldingBars   int
	MinHoldingBars       int
	MinFoldTrades        int
	MinValidFolds        int
	ConsistencyThreshold float64
	IQRPenalty           float64
	ConsistencyPenalty   float64
	Promote              int
	Seed                 int64
}

// DefaultTimeSeriesConfig returns the production CV settings
func DefaultTimeSeriesConfig() TimeSeriesConfig {
	return TimeSeriesConfig{
		Folds:                5,
		TestSize:             0.2,
		PurgeFraction:        0.01,
		EmbargoMultiple:      2.0,
		DefaultHoldingBars:   4,
		MinHoldingBars:       2,
		MinFoldTrades:        20,
		MinValidFolds:        3,
		ConsistencyThreshold: 0.6,
		IQRPenalty:           0.3,
		ConsistencyPenalty:   1000.0,
		Promote:              3,
	}
}

// Fold is one purged train/test split. Train has up to two segments on
// either side of the embargoed test window.
type Fold struct {
	Index int           `json:"index"`
	Train []dataset.Range `json:"train"`
	Test  dataset.Range `json:"test"`
	Gap   int           `json:"gap"` // purge + embargo bars around the test
}

// FoldResult is the evaluation of one fold
type FoldResult struct {
	Fold       Fold                      `json:"fold"`
	Valid      bool                      `json:"valid"`
	Score      float64                   `json:"score"`
	TradeCount int                       `json:"trade_count"`
	Metrics    models.PerformanceMetrics `json:"metrics"`
}

// CVReport summarizes all folds for one candidate
type CVReport struct {
	CandidateID string       `json:"candidate_id"`
	Folds       []FoldResult `json:"folds"`
	ValidFolds  int          `json:"valid_folds"`
	CVScore     float64      `json:"cv_score"`
	Consistency float64      `json:"consistency"`
	Rejected    bool         `json:"rejected"`
	Reason      string       `json:"reason,omitempty"`
}

// TimeSeriesValidator runs purged, embargoed K-fold CV over candidates
type TimeSeriesValidator struct {
	strategy  strategy.Strategy
	evaluator *perf.Evaluator
	cfg       TimeSeriesConfig
	logger    *logrus.Logger
}

// NewTimeSeriesValidator creates the stage
func NewTimeSeriesValidator(strat strategy.Strategy, evaluator *perf.Evaluator, cfg TimeSeriesConfig, logger *logrus.Logger) (*TimeSeriesValidator, error) {
	if strat == nil {
		return nil, fmt.Errorf("timeseries validator requires a strategy")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("timeseries validator requires an evaluator")
	}
	if cfg.Folds < 2 {
		return nil, fmt.Errorf("timeseries validator requires at least 2 folds, got %d", cfg.Folds)
	}
	return &TimeSeriesValidator{strategy: strat, evaluator: evaluator, cfg: cfg, logger: logger}, nil
}

// BuildFolds constructs the purged splits for a series of n bars with
// the given gap (purge + embargo) in bars.
func (v *TimeSeriesValidator) BuildFolds(n, gap int) ([]Fold, error) {
	testLen := int(float64(n) * v.cfg.TestSize)
	if testLen < 1 {
		return nil, models.ErrInsufficientData
	}
	step := (n - testLen) / (v.cfg.Folds - 1)
	if step < 1 {
		return nil, models.ErrInsufficientData
	}

	folds := make([]Fold, 0, v.cfg.Folds)
	for k := 0; k < v.cfg.Folds; k++ {
		testStart := k * step
		testEnd := testStart + testLen
		if testEnd > n {
			testEnd = n
		}

		train := make([]dataset.Range, 0, 2)
		if before := testStart - gap; before > 0 {
			train = append(train, dataset.Range{Start: 0, End: before})
		}
		if after := testEnd + gap; after < n {
			train = append(train, dataset.Range{Start: after, End: n})
		}

		fold := Fold{
			Index: k,
			Train: train,
			Test:  dataset.Range{Start: testStart, End: testEnd},
			Gap:   gap,
		}
		if err := validateNoLeakage(fold); err != nil {
			return nil, err
		}
		folds = append(folds, fold)
	}
	return folds, nil
}

// validateNoLeakage rejects any fold whose train segments reach inside
// the purge and embargo zone around the test window.
func validateNoLeakage(fold Fold) error {
	lo := fold.Test.Start - fold.Gap
	hi := fold.Test.End + fold.Gap
	for _, tr := range fold.Train {
		if tr.Start < hi && tr.End > lo {
			return fmt.Errorf("fold %d train [%d, %d) overlaps exclusion [%d, %d): %w",
				fold.Index, tr.Start, tr.End, lo, hi, models.ErrLeakageDetected)
		}
	}
	return nil
}

// Validate evaluates one candidate across the folds
func (v *TimeSeriesValidator) Validate(ctx context.Context, series *dataset.Series, cand *models.Candidate) (CVReport, error) {
	report := CVReport{CandidateID: cand.ID.String()}
	n := series.Len()

	// The embargo scales with how long this candidate holds trades.
	holding := v.cfg.DefaultHoldingBars
	fullSeed := params.DeriveSeed(v.cfg.Seed, StageTimeSeriesCV, 0)
	if trades, err := v.strategy.Evaluate(ctx, cand.Params, series.FullRange(), fullSeed); err == nil {
		holding = models.AverageHoldingBars(trades, v.cfg.MinHoldingBars)
	}
	purge := int(float64(n) * v.cfg.PurgeFraction)
	if purge < 1 {
		purge = 1
	}
	embargo := int(v.cfg.EmbargoMultiple * float64(holding))
	gap := purge + embargo

	folds, err := v.BuildFolds(n, gap)
	if err != nil {
		return report, err
	}

	scores := []float64{}
	profitable := 0
	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := v.evaluateFold(ctx, series, cand, fold)
		report.Folds = append(report.Folds, result)
		if !result.Valid {
			continue
		}
		report.ValidFolds++
		scores = append(scores, result.Score)
		if result.Metrics.TotalReturn > 0 {
			profitable++
		}
	}

	if report.ValidFolds < v.cfg.MinValidFolds {
		report.Rejected = true
		report.Reason = fmt.Sprintf("only %d valid folds, need %d", report.ValidFolds, v.cfg.MinValidFolds)
		return report, nil
	}

	report.Consistency = float64(profitable) / float64(report.ValidFolds)
	report.CVScore = perf.Median(scores) - v.cfg.IQRPenalty*perf.IQR(scores)
	if report.Consistency < v.cfg.ConsistencyThreshold {
		report.CVScore -= v.cfg.ConsistencyPenalty * (v.cfg.ConsistencyThreshold - report.Consistency)
	}
	return report, nil
}

func (v *TimeSeriesValidator) evaluateFold(ctx context.Context, series *dataset.Series, cand *models.Candidate, fold Fold) FoldResult {
	result := FoldResult{Fold: fold}
	seed := params.DeriveSeed(v.cfg.Seed, StageTimeSeriesCV, fold.Index+1)

	trades, err := v.strategy.Evaluate(ctx, cand.Params, fold.Test, seed)
	if err != nil {
		return result
	}
	result.TradeCount = len(trades)
	if len(trades) < v.cfg.MinFoldTrades {
		return result
	}

	m := v.evaluator.Calculate(trades)
	result.Metrics = m
	result.Score = v.evaluator.RawScore(m) - math.Max(0, m.MaxDrawdown-0.15)*10.0
	result.Valid = true
	return result
}

// Run validates all candidates and promotes the best by CV score
func (v *TimeSeriesValidator) Run(ctx context.Context, series *dataset.Series, candidates []*models.Candidate) ([]*models.Candidate, []CVReport, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("timeseries validation requires candidates: %w", models.ErrStageFailed)
	}

	type ranked struct {
		cand   *models.Candidate
		report CVReport
	}
	accepted := []ranked{}
	rejected := []*models.Candidate{}
	reports := make([]CVReport, 0, len(candidates))

	for _, cand := range candidates {
		report, err := v.Validate(ctx, series, cand)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, report)
		if report.Rejected {
			if v.logger != nil {
				v.logger.WithFields(logrus.Fields{
					"candidate": cand.ID,
					"reason":    report.Reason,
				}).Warn("Candidate rejected by purged CV")
			}
			annotated := cand.Clone()
			annotated.Source = models.SourceTimeSeriesCV
			annotated.CVScore = report.CVScore
			rejected = append(rejected, annotated)
			continue
		}

		promoted := cand.Clone()
		promoted.Source = models.SourceTimeSeriesCV
		promoted.CVScore = report.CVScore
		promoted.FoldScores = foldScores(report)
		accepted = append(accepted, ranked{cand: promoted, report: report})
	}

	// Best-effort fallback: a pool where every candidate violates the
	// fold gates still flows downstream so the run can finish degraded.
	if len(accepted) == 0 {
		if v.logger != nil {
			v.logger.WithField("candidates", len(rejected)).Warn("No candidate survived purged CV, passing rejected pool through")
		}
		return rejected, reports, nil
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].cand.CVScore > accepted[j].cand.CVScore
	})
	keep := v.cfg.Promote
	if keep <= 0 || keep > len(accepted) {
		keep = len(accepted)
	}

	out := make([]*models.Candidate, keep)
	for i := 0; i < keep; i++ {
		out[i] = accepted[i].cand
	}
	return out, reports, nil
}

func foldScores(report CVReport) []float64 {
	scores := []float64{}
	for _, f := range report.Folds {
		if f.Valid {
			scores = append(scores, f.Score)
		}
	}
	return scores
}
