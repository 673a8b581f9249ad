package optimize

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

// StageGlobalSearch is the seed-derivation identifier for this stage
const StageGlobalSearch = "global_search"

// GlobalConfig configures the quasi-random global search
type GlobalConfig struct {
	Samples         int
	Method          params.SamplerMethod
	Seed            int64
	Workers         int
	KeepStage1      float64 // survivors after the cheapest fidelity
	KeepStage2      float64 // survivors after the medium fidelity
	FinalKeep       float64
	MinKeep         int
	ScreenMinPF     float64
	ScreenMinTrades int
	FidelityCaps    [3]int // max bars per fidelity tier
}

// DefaultGlobalConfig returns the production search settings
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Samples:         120,
		Method:          params.SamplerSobol,
		Workers:         4,
		KeepStage1:      0.30,
		KeepStage2:      0.40,
		FinalKeep:       0.30,
		MinKeep:         5,
		ScreenMinPF:     1.2,
		ScreenMinTrades: 30,
		FidelityCaps:    [3]int{10000, 30000, 50000},
	}
}

// GlobalSearch explores the parameter space with a Sobol sample and
// prunes candidates through three data-fidelity tiers.
type GlobalSearch struct {
	runner *Runner
	space  *params.Space
	cfg    GlobalConfig
	logger *logrus.Logger
}

// NewGlobalSearch creates the stage
func NewGlobalSearch(runner *Runner, space *params.Space, cfg GlobalConfig, logger *logrus.Logger) (*GlobalSearch, error) {
	if runner == nil {
		return nil, fmt.Errorf("global search requires a runner")
	}
	if space == nil {
		return nil, fmt.Errorf("global search requires a parameter space")
	}
	if cfg.Samples <= 0 {
		cfg.Samples = 120
	}
	if cfg.MinKeep <= 0 {
		cfg.MinKeep = 5
	}
	return &GlobalSearch{runner: runner, space: space, cfg: cfg, logger: logger}, nil
}

// scored pairs a sampled set with its latest outcome
type scored struct {
	ordinal int
	set     params.Set
	outcome Outcome
}

// Run executes the search over the series and returns the surviving
// candidates in descending score order.
func (g *GlobalSearch) Run(ctx context.Context, series *dataset.Series) ([]*models.Candidate, error) {
	sets := params.NewSampler(g.space, g.cfg.Method, g.cfg.Seed).Sample(g.cfg.Samples)
	tiers := g.fidelityWindows(series)

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"samples": len(sets),
			"method":  string(g.cfg.Method),
			"tier1":   tiers[0].Len(),
			"tier2":   tiers[1].Len(),
			"tier3":   tiers[2].Len(),
		}).Info("Starting global search")
	}

	pool := make([]scored, len(sets))
	for i, set := range sets {
		pool[i] = scored{ordinal: i, set: set}
	}

	// Tier 1: cheap screen, then keep the best slice.
	stage1 := g.evaluateTier(ctx, pool, tiers[0])
	screened := g.screen(stage1)
	if len(screened) == 0 {
		screened = topN(stage1, g.cfg.MinKeep)
	}
	survivors := keepFraction(screened, g.cfg.KeepStage1, g.cfg.MinKeep)

	// Tier 2: medium fidelity. An emptied tier falls back to the best
	// of the previous one.
	stage2 := g.evaluateTier(ctx, survivors, tiers[1])
	stage2 = keepFraction(stage2, g.cfg.KeepStage2, g.cfg.MinKeep)
	if len(stage2) == 0 {
		stage2 = topN(survivors, g.cfg.MinKeep)
	}

	// Tier 3: full fidelity, final cut.
	stage3 := g.evaluateTier(ctx, stage2, tiers[2])
	final := keepFraction(stage3, g.cfg.FinalKeep, g.cfg.MinKeep)
	if len(final) == 0 {
		return nil, fmt.Errorf("global search produced no candidates: %w", models.ErrStageFailed)
	}

	candidates := make([]*models.Candidate, len(final))
	for i, s := range final {
		c := models.NewCandidate(s.set, models.SourceGlobalSearch)
		c.Score = s.outcome.Score
		c.Metrics = s.outcome.Metrics
		candidates[i] = c
	}

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"survivors":  len(candidates),
			"best_score": candidates[0].Score,
		}).Info("Global search complete")
	}
	return candidates, ctx.Err()
}

// fidelityWindows carves the most recent 10%/30%/100% of the series,
// capped per tier.
func (g *GlobalSearch) fidelityWindows(series *dataset.Series) [3]dataset.Range {
	n := series.Len()
	bars := [3]int{n / 10, 3 * n / 10, n}
	var windows [3]dataset.Range
	for i := range bars {
		b := bars[i]
		if limit := g.cfg.FidelityCaps[i]; limit > 0 && b > limit {
			b = limit
		}
		if b < 1 {
			b = 1
		}
		windows[i] = dataset.Range{Start: n - b, End: n}
	}
	return windows
}

func (g *GlobalSearch) evaluateTier(ctx context.Context, pool []scored, window dataset.Range) []scored {
	sets := make([]params.Set, len(pool))
	seeds := make([]int64, len(pool))
	for i, s := range pool {
		sets[i] = s.set
		seeds[i] = params.DeriveSeed(g.cfg.Seed, StageGlobalSearch, s.ordinal)
	}
	outcomes := g.runner.RunMany(ctx, sets, window, seeds, g.cfg.Workers)

	out := make([]scored, len(pool))
	for i := range pool {
		out[i] = pool[i]
		out[i].outcome = outcomes[i]
	}
	return out
}

// screen drops candidates that fail the cheap viability filter
func (g *GlobalSearch) screen(pool []scored) []scored {
	out := make([]scored, 0, len(pool))
	for _, s := range pool {
		if s.outcome.Status == StatusFailed {
			continue
		}
		m := s.outcome.Metrics
		if m.ProfitFactor < g.cfg.ScreenMinPF || m.TradeCount < g.cfg.ScreenMinTrades {
			continue
		}
		out = append(out, s)
	}
	return out
}

// keepFraction keeps the top fraction by raw score, at least min
func keepFraction(pool []scored, fraction float64, min int) []scored {
	if len(pool) == 0 {
		return nil
	}
	sorted := append([]scored{}, pool...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].outcome.RawScore > sorted[j].outcome.RawScore
	})
	keep := int(float64(len(sorted)) * fraction)
	if keep < min {
		keep = min
	}
	if keep > len(sorted) {
		keep = len(sorted)
	}
	return sorted[:keep]
}

func topN(pool []scored, n int) []scored {
	return keepFraction(pool, 0, n)
}
