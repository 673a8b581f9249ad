package validate

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/optimize"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
)

// StageWalkForward is the seed-derivation identifier for this stage
const StageWalkForward = "walk_forward"

// WalkForwardConfig configures rolling out-of-sample analysis
type WalkForwardConfig struct {
	Slices           int
	TrainDays        int
	TestDays         int
	RefineTrials     int // per-slice re-optimization budget
	VolatilityWindow int
	MinOOSTrades     int
	GateProfitFactor float64
	GateSortino      float64
	GateCalmar       float64
	GateMaxDrawdown  float64
	GateConsistency  float64
	Seed             int64
	Workers          int
}

// DefaultWalkForwardConfig returns the production WFO settings:
// 9 months of training, 2 months of test, 8 rolling slices.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{
		Slices:           8,
		TrainDays:        270,
		TestDays:         60,
		RefineTrials:     20,
		VolatilityWindow: dataset.DefaultVolatilityWindow,
		MinOOSTrades:     200,
		GateProfitFactor: 1.8,
		GateSortino:      1.5,
		GateCalmar:       1.5,
		GateMaxDrawdown:  0.30,
		GateConsistency:  0.6,
		Workers:          4,
	}
}

// SliceResult is one walk-forward slice outcome
type SliceResult struct {
	Index   int                       `json:"index"`
	Train   dataset.Range             `json:"train"`
	Test    dataset.Range             `json:"test"`
	Regime  dataset.Regime            `json:"regime"`
	Params  params.Set                `json:"params"`
	Score   float64                   `json:"score"`
	Metrics models.PerformanceMetrics `json:"metrics"`
}

// RegimeStats aggregates slice outcomes per volatility regime
type RegimeStats struct {
	Count           int     `json:"count"`
	MedianScore     float64 `json:"median_score"`
	ProfitFactor    float64 `json:"profit_factor"`
	WinRate         float64 `json:"win_rate"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	ProfitableRatio float64 `json:"profitable_ratio"`
}

// WalkForwardReport summarizes the rolling analysis for one candidate
type WalkForwardReport struct {
	CandidateID  string                         `json:"candidate_id"`
	Slices       []SliceResult                  `json:"slices"`
	MedianScore  float64                        `json:"median_score"`
	OOSMetrics   models.PerformanceMetrics      `json:"oos_metrics"`
	TotalTrades  int                            `json:"total_trades"`
	Consistency  float64                        `json:"consistency"`
	GatePassed   bool                           `json:"gate_passed"`
	GateFailures []string                       `json:"gate_failures,omitempty"`
	RegimeStats  map[dataset.Regime]RegimeStats `json:"regime_stats"`
}

// WalkForwardAnalyzer re-optimizes a candidate on each rolling train
// window and scores it on the unseen test window that follows.
type WalkForwardAnalyzer struct {
	runner *optimize.Runner
	space  *params.Space
	cfg    WalkForwardConfig
	logger *logrus.Logger
}

// NewWalkForwardAnalyzer creates the stage
func NewWalkForwardAnalyzer(runner *optimize.Runner, space *params.Space, cfg WalkForwardConfig, logger *logrus.Logger) (*WalkForwardAnalyzer, error) {
	if runner == nil {
		return nil, fmt.Errorf("walk-forward analyzer requires a runner")
	}
	if space == nil {
		return nil, fmt.Errorf("walk-forward analyzer requires a parameter space")
	}
	if cfg.Slices < 2 {
		return nil, fmt.Errorf("walk-forward analyzer requires at least 2 slices, got %d", cfg.Slices)
	}
	return &WalkForwardAnalyzer{runner: runner, space: space, cfg: cfg, logger: logger}, nil
}

// BuildSlices lays out the rolling train/test windows. The step is
// chosen so the final test window ends at the last bar.
func (w *WalkForwardAnalyzer) BuildSlices(series *dataset.Series) ([]SliceResult, error) {
	bpd := series.BarsPerDay()
	trainBars := w.cfg.TrainDays * bpd
	testBars := w.cfg.TestDays * bpd
	n := series.Len()

	if trainBars+testBars >= n {
		return nil, fmt.Errorf("series of %d bars cannot fit %d train + %d test: %w",
			n, trainBars, testBars, models.ErrInsufficientData)
	}
	step := (n - trainBars - testBars) / (w.cfg.Slices - 1)
	if step < 1 {
		step = 1
	}

	slices := make([]SliceResult, 0, w.cfg.Slices)
	for k := 0; k < w.cfg.Slices; k++ {
		trainStart := k * step
		trainEnd := trainStart + trainBars
		testEnd := trainEnd + testBars
		if testEnd > n {
			break
		}
		slices = append(slices, SliceResult{
			Index: k,
			Train: dataset.Range{Start: trainStart, End: trainEnd},
			Test:  dataset.Range{Start: trainEnd, End: testEnd},
		})
	}
	if len(slices) < 2 {
		return nil, models.ErrInsufficientData
	}
	return slices, nil
}

// Analyze runs the rolling analysis for one candidate
func (w *WalkForwardAnalyzer) Analyze(ctx context.Context, series *dataset.Series, cand *models.Candidate) (WalkForwardReport, error) {
	report := WalkForwardReport{CandidateID: cand.ID.String()}

	slices, err := w.BuildSlices(series)
	if err != nil {
		return report, err
	}
	labeler := dataset.NewRegimeLabeler(series, w.cfg.VolatilityWindow)

	scores := []float64{}
	oosRuns := []models.PerformanceMetrics{}
	profitable := 0
	for i := range slices {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s := &slices[i]
		s.Regime = labeler.Dominant(s.Test)

		sliceParams, err := w.reoptimize(ctx, s.Train, cand, s.Index)
		if err != nil {
			sliceParams = cand.Params
		}
		s.Params = sliceParams

		seed := params.DeriveSeed(w.cfg.Seed, StageWalkForward, s.Index)
		out := w.runner.Run(ctx, sliceParams, s.Test, seed)
		s.Score = out.RawScore
		s.Metrics = out.Metrics

		scores = append(scores, s.Score)
		oosRuns = append(oosRuns, s.Metrics)
		report.TotalTrades += s.Metrics.TradeCount
		if s.Metrics.TotalReturn > 0 {
			profitable++
		}
	}

	report.Slices = slices
	report.MedianScore = perf.Median(scores)
	report.OOSMetrics = perf.MedianAggregate(oosRuns)
	report.Consistency = float64(profitable) / float64(len(slices))
	report.RegimeStats = w.segmentByRegime(slices)
	report.GatePassed, report.GateFailures = w.gate(report)
	return report, nil
}

// reoptimize runs a reduced-budget refinement seeded from the
// candidate on the slice's training window.
func (w *WalkForwardAnalyzer) reoptimize(ctx context.Context, train dataset.Range, cand *models.Candidate, sliceIndex int) (params.Set, error) {
	cfg := optimize.DefaultLocalConfig()
	cfg.Trials = w.cfg.RefineTrials
	cfg.SeedTrials = 1
	cfg.FinalPool = 3
	cfg.FinalKeep = 1
	cfg.RepeatEvals = 1
	cfg.Workers = w.cfg.Workers
	cfg.Seed = params.DeriveSeed(w.cfg.Seed, StageWalkForward+"_refine", sliceIndex)

	refine, err := optimize.NewLocalRefinement(w.runner.WithStage(StageWalkForward), w.space, cfg, nil)
	if err != nil {
		return nil, err
	}
	best, err := refine.Run(ctx, train, []*models.Candidate{cand})
	if err != nil || len(best) == 0 {
		return nil, fmt.Errorf("slice %d re-optimization failed: %w", sliceIndex, err)
	}
	return best[0].Params, nil
}

// gate applies the hard out-of-sample acceptance thresholds
func (w *WalkForwardAnalyzer) gate(report WalkForwardReport) (bool, []string) {
	failures := []string{}
	m := report.OOSMetrics
	if m.ProfitFactor < w.cfg.GateProfitFactor {
		failures = append(failures, "profit_factor")
	}
	if m.SortinoRatio < w.cfg.GateSortino {
		failures = append(failures, "sortino")
	}
	if m.CalmarRatio < w.cfg.GateCalmar {
		failures = append(failures, "calmar")
	}
	if m.MaxDrawdown > w.cfg.GateMaxDrawdown {
		failures = append(failures, "max_drawdown")
	}
	if report.TotalTrades < w.cfg.MinOOSTrades {
		failures = append(failures, "total_trades")
	}
	if report.Consistency < w.cfg.GateConsistency {
		failures = append(failures, "consistency")
	}
	return len(failures) == 0, failures
}

func (w *WalkForwardAnalyzer) segmentByRegime(slices []SliceResult) map[dataset.Regime]RegimeStats {
	grouped := map[dataset.Regime][]SliceResult{}
	for _, s := range slices {
		grouped[s.Regime] = append(grouped[s.Regime], s)
	}

	stats := make(map[dataset.Regime]RegimeStats, len(grouped))
	for regime, group := range grouped {
		scores := make([]float64, len(group))
		pfs := make([]float64, len(group))
		winRates := make([]float64, len(group))
		dds := make([]float64, len(group))
		profitable := 0
		for i, s := range group {
			scores[i] = s.Score
			pfs[i] = s.Metrics.ProfitFactor
			winRates[i] = s.Metrics.WinRate
			dds[i] = s.Metrics.MaxDrawdown
			if s.Metrics.TotalReturn > 0 {
				profitable++
			}
		}
		stats[regime] = RegimeStats{
			Count:           len(group),
			MedianScore:     perf.Median(scores),
			ProfitFactor:    perf.Median(pfs),
			WinRate:         perf.Median(winRates),
			MaxDrawdown:     perf.Median(dds),
			ProfitableRatio: float64(profitable) / float64(len(group)),
		}
	}
	return stats
}

// Run analyzes all candidates. Candidates passing the OOS gate come
// back first; when none pass, all candidates are returned annotated so
// the pipeline can degrade explicitly instead of going empty.
func (w *WalkForwardAnalyzer) Run(ctx context.Context, series *dataset.Series, candidates []*models.Candidate) ([]*models.Candidate, []WalkForwardReport, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("walk-forward analysis requires candidates: %w", models.ErrStageFailed)
	}

	passed := []*models.Candidate{}
	failed := []*models.Candidate{}
	reports := make([]WalkForwardReport, 0, len(candidates))
	for _, cand := range candidates {
		report, err := w.Analyze(ctx, series, cand)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, report)

		annotated := cand.Clone()
		annotated.Source = models.SourceWalkForward
		annotated.OOSScore = report.MedianScore
		if report.GatePassed {
			passed = append(passed, annotated)
		} else {
			failed = append(failed, annotated)
			if w.logger != nil {
				w.logger.WithFields(logrus.Fields{
					"candidate": cand.ID,
					"failures":  report.GateFailures,
				}).Warn("Candidate failed walk-forward gate")
			}
		}
	}

	if len(passed) > 0 {
		return passed, reports, nil
	}
	return failed, reports, nil
}
