package optimize

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/metrics"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
)

// StageLocalRefinement is the seed-derivation identifier for this stage
const StageLocalRefinement = "local_refinement"

// LocalConfig configures the TPE refinement stage
type LocalConfig struct {
	Trials      int
	TopK        int // survivors defining the focus region
	SeedTrials  int // initial trials replayed from global survivors
	FinalPool   int // best trials re-evaluated for stability
	FinalKeep   int
	RepeatEvals int
	Seed        int64
	Workers     int
}

// DefaultLocalConfig returns the production refinement settings
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Trials:      40,
		TopK:        5,
		SeedTrials:  10,
		FinalPool:   12,
		FinalKeep:   5,
		RepeatEvals: 3,
		Workers:     4,
	}
}

// LocalRefinement narrows the search to a focus region around the
// global survivors and runs a Bayesian-style optimization inside it.
type LocalRefinement struct {
	runner *Runner
	space  *params.Space
	cfg    LocalConfig
	logger *logrus.Logger
}

// NewLocalRefinement creates the stage
func NewLocalRefinement(runner *Runner, space *params.Space, cfg LocalConfig, logger *logrus.Logger) (*LocalRefinement, error) {
	if runner == nil {
		return nil, fmt.Errorf("local refinement requires a runner")
	}
	if space == nil {
		return nil, fmt.Errorf("local refinement requires a parameter space")
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 40
	}
	if cfg.FinalKeep <= 0 {
		cfg.FinalKeep = 5
	}
	if cfg.RepeatEvals <= 0 {
		cfg.RepeatEvals = 3
	}
	return &LocalRefinement{runner: runner, space: space, cfg: cfg, logger: logger}, nil
}

// Run refines the survivors over the window and returns the stability
// checked top candidates in descending score order.
func (l *LocalRefinement) Run(ctx context.Context, window dataset.Range, survivors []*models.Candidate) ([]*models.Candidate, error) {
	if len(survivors) == 0 {
		return nil, fmt.Errorf("local refinement requires survivors: %w", models.ErrStageFailed)
	}

	bounds := l.focusRegion(survivors)
	sampler := newTPESampler(bounds, params.DeriveSeed(l.cfg.Seed, StageLocalRefinement, 0))

	trials := make([]tpeTrial, 0, l.cfg.Trials)
	for i := 0; i < l.cfg.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var set params.Set
		if i < l.cfg.SeedTrials && i < len(survivors) {
			set = l.space.Sanitize(survivors[i].Params)
		} else {
			set = sampler.suggest(trials)
		}

		seed := params.DeriveSeed(l.cfg.Seed, StageLocalRefinement, i+1)
		out := l.runner.Run(ctx, set, window, seed)
		if len(out.Violations) > 0 {
			// Constraint violation is a prune, scored so the model
			// still learns the direction to avoid.
			out.Status = StatusPruned
			metrics.RecordPrune(StageLocalRefinement)
		}
		trials = append(trials, tpeTrial{set: set, score: out.Score})
	}

	finalists := l.finalize(ctx, window, trials)
	if len(finalists) == 0 {
		return nil, fmt.Errorf("local refinement produced no candidates: %w", models.ErrStageFailed)
	}

	if l.logger != nil {
		l.logger.WithFields(logrus.Fields{
			"trials":     len(trials),
			"finalists":  len(finalists),
			"best_score": finalists[0].Score,
		}).Info("Local refinement complete")
	}
	return finalists, nil
}

// focusRegion derives per-parameter refinement bounds: centered on the
// mean of the top-K survivors with a radius covering their spread.
func (l *LocalRefinement) focusRegion(survivors []*models.Candidate) []focusBound {
	topK := l.cfg.TopK
	if topK <= 0 || topK > len(survivors) {
		topK = len(survivors)
	}

	bounds := make([]focusBound, 0, l.space.Dimensions())
	for _, def := range l.space.Definitions() {
		values := make([]float64, topK)
		for i := 0; i < topK; i++ {
			values[i] = survivors[i].Params[def.Name]
		}
		center := mean(values)
		radius := math.Max(2*stdDev(values), 0.10*math.Abs(center))
		if radius == 0 {
			radius = 0.10 * (def.Max - def.Min)
		}

		lo := math.Max(def.Min, center-radius)
		hi := math.Min(def.Max, center+radius)
		if !(lo < hi) {
			lo, hi = def.Min, def.Max
		}
		bounds = append(bounds, focusBound{def: def, min: lo, max: hi})
	}
	return bounds
}

// finalize re-evaluates the best trials with fresh seeds and keeps the
// ones whose scores hold up.
func (l *LocalRefinement) finalize(ctx context.Context, window dataset.Range, trials []tpeTrial) []*models.Candidate {
	sorted := append([]tpeTrial{}, trials...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	pool := l.cfg.FinalPool
	if pool > len(sorted) {
		pool = len(sorted)
	}

	type finalist struct {
		set       params.Set
		meanScore float64
		metrics   models.PerformanceMetrics
		stability perf.Stability
	}

	finalists := make([]finalist, 0, pool)
	for i := 0; i < pool; i++ {
		set := sorted[i].set
		scores := make([]float64, 0, l.cfg.RepeatEvals)
		runs := make([]models.PerformanceMetrics, 0, l.cfg.RepeatEvals)
		for rep := 0; rep < l.cfg.RepeatEvals; rep++ {
			seed := params.DeriveSeed(l.cfg.Seed, StageLocalRefinement+"_final", i*l.cfg.RepeatEvals+rep)
			out := l.runner.Run(ctx, set, window, seed)
			scores = append(scores, out.Score)
			runs = append(runs, out.Metrics)
		}
		finalists = append(finalists, finalist{
			set:       set,
			meanScore: mean(scores),
			metrics:   perf.MedianAggregate(runs),
			stability: perf.MeasureStability(scores),
		})
	}

	sort.SliceStable(finalists, func(i, j int) bool { return finalists[i].meanScore > finalists[j].meanScore })
	keep := l.cfg.FinalKeep
	if keep > len(finalists) {
		keep = len(finalists)
	}

	out := make([]*models.Candidate, 0, keep)
	for _, f := range finalists[:keep] {
		c := models.NewCandidate(f.set, models.SourceLocalRefinement)
		c.Score = f.meanScore
		c.Metrics = f.metrics
		c.StabilityCV = f.stability.CV
		out = append(out, c)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}
