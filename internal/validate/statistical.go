package validate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

// StageStatistical is the seed-derivation identifier for this stage
const StageStatistical = "statistical_validation"

// StatisticalConfig configures the multiple-testing corrections
type StatisticalConfig struct {
	Resamples       int     // bootstrap resamples for Reality Check and SPA
	Alpha           float64 // p-value threshold
	DeflatedZ       float64 // one-sided z threshold for the deflated Sortino
	RobustnessBlend float64 // weight on Monte Carlo robustness in the combined score
	MaxRecommended  int
	Seed            int64
}

// DefaultStatisticalConfig returns the production validation settings
func DefaultStatisticalConfig() StatisticalConfig {
	return StatisticalConfig{
		Resamples:       1000,
		Alpha:           0.05,
		DeflatedZ:       1.645,
		RobustnessBlend: 0.6,
		MaxRecommended:  2,
	}
}

// CandidateVerdict records the per-candidate test outcomes
type CandidateVerdict struct {
	CandidateID     string  `json:"candidate_id"`
	DeflatedSortino float64 `json:"deflated_sortino"`
	DeflatedPassed  bool    `json:"deflated_passed"`
	RealityCheckP   float64 `json:"reality_check_p"`
	RealityPassed   bool    `json:"reality_passed"`
	SPAP            float64 `json:"spa_p"`
	SPAPassed       bool    `json:"spa_passed"`
	CombinedScore   float64 `json:"combined_score"`
	Valid           bool    `json:"valid"`
}

// StatisticalReport is the final validation summary
type StatisticalReport struct {
	Trials    int                `json:"trials"`
	Verdicts  []CandidateVerdict `json:"verdicts"`
	Degraded  bool               `json:"degraded"`
	Resamples int                `json:"resamples"`
}

// StatisticalValidator applies multiple-testing corrections to the
// surviving candidates. The number of trials spent across the whole
// search inflates every individual result, so raw ratios are deflated
// and bootstrap nulls account for selection over the candidate family.
type StatisticalValidator struct {
	strategy strategy.Strategy
	cfg      StatisticalConfig
	logger   *logrus.Logger
}

// NewStatisticalValidator creates the stage
func NewStatisticalValidator(strat strategy.Strategy, cfg StatisticalConfig, logger *logrus.Logger) (*StatisticalValidator, error) {
	if strat == nil {
		return nil, fmt.Errorf("statistical validator requires a strategy")
	}
	if cfg.Resamples <= 0 {
		cfg.Resamples = 1000
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.05
	}
	if cfg.DeflatedZ <= 0 {
		cfg.DeflatedZ = 1.645
	}
	if cfg.MaxRecommended <= 0 {
		cfg.MaxRecommended = 2
	}
	if cfg.RobustnessBlend <= 0 || cfg.RobustnessBlend >= 1 {
		cfg.RobustnessBlend = 0.6
	}
	return &StatisticalValidator{strategy: strat, cfg: cfg, logger: logger}, nil
}

// DeflatedSortino discounts a Sortino ratio for the number of search
// trials that produced it
func DeflatedSortino(sortino float64, trials int) float64 {
	if trials < 2 {
		trials = 2
	}
	return sortino / math.Sqrt(math.Log(float64(trials)))
}

// Validate runs all three tests on each candidate and produces the
// final ranking. trials is the total evaluation count across every
// preceding stage.
func (v *StatisticalValidator) Validate(ctx context.Context, series *dataset.Series, candidates []*models.Candidate, trials int) ([]*models.Candidate, StatisticalReport, error) {
	report := StatisticalReport{Trials: trials, Resamples: v.cfg.Resamples}
	if len(candidates) == 0 {
		return nil, report, fmt.Errorf("statistical validation requires candidates: %w", models.ErrStageFailed)
	}

	// Per-candidate trade return streams for the bootstrap nulls.
	returns := make([][]float64, len(candidates))
	for i, cand := range candidates {
		seed := params.DeriveSeed(v.cfg.Seed, StageStatistical, i)
		trades, err := v.strategy.Evaluate(ctx, cand.Params, series.FullRange(), seed)
		if err != nil {
			return nil, report, fmt.Errorf("evaluation for candidate %s failed: %w", cand.ID, err)
		}
		returns[i] = models.PnLs(trades)
	}

	rng := rand.New(rand.NewSource(params.DeriveSeed(v.cfg.Seed, StageStatistical, len(candidates))))
	rcP := v.realityCheck(returns, rng)
	spaP := v.spaTest(returns, rng)

	annotated := make([]*models.Candidate, len(candidates))
	verdicts := make([]CandidateVerdict, len(candidates))
	for i, cand := range candidates {
		deflated := DeflatedSortino(cand.Metrics.SortinoRatio, trials)
		verdict := CandidateVerdict{
			CandidateID:     cand.ID.String(),
			DeflatedSortino: deflated,
			DeflatedPassed:  deflated >= v.cfg.DeflatedZ,
			RealityCheckP:   rcP[i],
			RealityPassed:   rcP[i] <= v.cfg.Alpha,
			SPAP:            spaP[i],
			SPAPassed:       spaP[i] <= v.cfg.Alpha,
		}
		verdict.Valid = verdict.DeflatedPassed && verdict.RealityPassed && verdict.SPAPassed
		verdict.CombinedScore = v.cfg.RobustnessBlend*cand.Robustness + (1-v.cfg.RobustnessBlend)*cand.OOSScore

		clone := cand.Clone()
		clone.CombinedScore = verdict.CombinedScore
		annotated[i] = clone
		verdicts[i] = verdict
	}

	// Rank by combined score; valid candidates sort ahead of invalid.
	order := make([]int, len(annotated))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := verdicts[order[a]], verdicts[order[b]]
		if va.Valid != vb.Valid {
			return va.Valid
		}
		return va.CombinedScore > vb.CombinedScore
	})

	ranked := make([]*models.Candidate, 0, len(annotated))
	rankedVerdicts := make([]CandidateVerdict, 0, len(verdicts))
	validCount := 0
	for _, idx := range order {
		if verdicts[idx].Valid {
			validCount++
		}
	}

	if validCount == 0 {
		// Nothing survives the corrections. Keep the single best
		// candidate so the run still produces output, but never
		// recommend it.
		report.Degraded = true
		best := order[0]
		clone := annotated[best]
		clone.FinalRanking = 1
		clone.Recommended = false
		ranked = append(ranked, clone)
		rankedVerdicts = append(rankedVerdicts, verdicts[best])
	} else {
		rank := 0
		for _, idx := range order {
			if !verdicts[idx].Valid {
				continue
			}
			rank++
			clone := annotated[idx]
			clone.FinalRanking = rank
			clone.Recommended = rank <= v.cfg.MaxRecommended
			ranked = append(ranked, clone)
			rankedVerdicts = append(rankedVerdicts, verdicts[idx])
		}
	}
	report.Verdicts = rankedVerdicts

	if v.logger != nil {
		v.logger.WithFields(logrus.Fields{
			"candidates": len(candidates),
			"valid":      validCount,
			"degraded":   report.Degraded,
			"trials":     trials,
		}).Info("Statistical validation complete")
	}
	return ranked, report, nil
}

// realityCheck runs White's Reality Check against a zero-return
// benchmark. The null distribution is the bootstrap maximum of the
// mean-centered candidate performances.
func (v *StatisticalValidator) realityCheck(returns [][]float64, rng *rand.Rand) []float64 {
	means := make([]float64, len(returns))
	for i, r := range returns {
		means[i] = meanOf(r)
	}

	maxNull := make([]float64, v.cfg.Resamples)
	for b := 0; b < v.cfg.Resamples; b++ {
		best := math.Inf(-1)
		for i, r := range returns {
			if len(r) == 0 {
				continue
			}
			block := int(math.Sqrt(float64(len(r))))
			resampled := blockBootstrap(r, block, rng)
			// Centering enforces the null of no excess return.
			stat := meanOf(resampled) - means[i]
			if stat > best {
				best = stat
			}
		}
		maxNull[b] = best
	}

	ps := make([]float64, len(returns))
	for i := range returns {
		exceed := 0
		for _, m := range maxNull {
			if m >= means[i] {
				exceed++
			}
		}
		ps[i] = float64(exceed) / float64(v.cfg.Resamples)
	}
	return ps
}

// spaTest runs Hansen's SPA test with studentized statistics, which
// is less sensitive than the Reality Check to poor alternatives in
// the comparison set.
func (v *StatisticalValidator) spaTest(returns [][]float64, rng *rand.Rand) []float64 {
	const seFloor = 1e-8

	tStats := make([]float64, len(returns))
	means := make([]float64, len(returns))
	for i, r := range returns {
		means[i] = meanOf(r)
		tStats[i] = means[i] / (stdErrOf(r) + seFloor)
	}

	maxNull := make([]float64, v.cfg.Resamples)
	for b := 0; b < v.cfg.Resamples; b++ {
		best := math.Inf(-1)
		for i, r := range returns {
			if len(r) == 0 {
				continue
			}
			block := int(math.Sqrt(float64(len(r))))
			resampled := blockBootstrap(r, block, rng)
			stat := (meanOf(resampled) - means[i]) / (stdErrOf(resampled) + seFloor)
			if stat > best {
				best = stat
			}
		}
		maxNull[b] = best
	}

	ps := make([]float64, len(returns))
	for i := range returns {
		exceed := 0
		for _, m := range maxNull {
			if m >= tStats[i] {
				exceed++
			}
		}
		ps[i] = float64(exceed) / float64(v.cfg.Resamples)
	}
	return ps
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdErrOf(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := meanOf(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance/float64(n-1)) / math.Sqrt(float64(n))
}
