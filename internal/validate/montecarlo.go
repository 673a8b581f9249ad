package validate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

// StageMonteCarlo is the seed-derivation identifier for this stage
const StageMonteCarlo = "monte_carlo"

// MonteCarloConfig configures the robustness simulation. The four
// stress mechanisms toggle independently.
type MonteCarloConfig struct {
	Simulations int

	BlockBootstrap bool
	TradeResample  bool
	ExecutionNoise bool
	ParamPerturb   bool

	SlippageStd     float64 // stddev of slippage as a fraction of |PnL|
	SpreadLambda    float64 // Poisson rate of spread-widening events
	SpreadExpansion float64 // cost fraction per spread event
	PerturbStd      float64 // parameter perturbation stddev fraction

	GateProfitFactorP5 float64
	GateSortinoP5      float64
	GateCalmarP5       float64
	GateDrawdownP95    float64
	GateSQNP50         float64

	Seed    int64
	Workers int
}

// DefaultMonteCarloConfig returns the production simulation settings
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Simulations:        1500,
		BlockBootstrap:     true,
		TradeResample:      true,
		ExecutionNoise:     true,
		ParamPerturb:       true,
		SlippageStd:        0.02,
		SpreadLambda:       0.05,
		SpreadExpansion:    0.1,
		PerturbStd:         0.10,
		GateProfitFactorP5: 1.5,
		GateSortinoP5:      1.2,
		GateCalmarP5:       1.2,
		GateDrawdownP95:    0.30,
		GateSQNP50:         3.0,
		Workers:            4,
	}
}

// MonteCarloReport summarizes the simulated metric distributions
type MonteCarloReport struct {
	CandidateID string                        `json:"candidate_id"`
	Simulations int                           `json:"simulations"`
	BlockLength int                           `json:"block_length"`
	Percentiles map[string]map[string]float64 `json:"percentiles"`
	Robustness  float64                       `json:"robustness"`
	GatePassed  bool                          `json:"gate_passed"`
}

// MonteCarloSimulator stresses a candidate's trade stream and
// parameters to estimate how fragile its edge is.
type MonteCarloSimulator struct {
	strategy  strategy.Strategy
	evaluator *perf.Evaluator
	space     *params.Space
	cfg       MonteCarloConfig
	logger    *logrus.Logger
}

// NewMonteCarloSimulator creates the stage
func NewMonteCarloSimulator(strat strategy.Strategy, evaluator *perf.Evaluator, space *params.Space, cfg MonteCarloConfig, logger *logrus.Logger) (*MonteCarloSimulator, error) {
	if strat == nil {
		return nil, fmt.Errorf("monte carlo simulator requires a strategy")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("monte carlo simulator requires an evaluator")
	}
	if space == nil {
		return nil, fmt.Errorf("monte carlo simulator requires a parameter space")
	}
	if cfg.Simulations <= 0 {
		cfg.Simulations = 1500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &MonteCarloSimulator{strategy: strat, evaluator: evaluator, space: space, cfg: cfg, logger: logger}, nil
}

// Simulate runs the full simulation for one candidate
func (s *MonteCarloSimulator) Simulate(ctx context.Context, series *dataset.Series, cand *models.Candidate) (MonteCarloReport, error) {
	report := MonteCarloReport{CandidateID: cand.ID.String(), Simulations: s.cfg.Simulations}

	baseSeed := params.DeriveSeed(s.cfg.Seed, StageMonteCarlo, 0)
	baseTrades, err := s.strategy.Evaluate(ctx, cand.Params, series.FullRange(), baseSeed)
	if err != nil {
		return report, fmt.Errorf("base evaluation failed: %w", err)
	}
	basePnLs := models.PnLs(baseTrades)
	report.BlockLength = blockLengthFromACF(basePnLs)

	sims := make([]models.PerformanceMetrics, s.cfg.Simulations)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					sims[i] = models.EmptyPerformance()
					continue
				}
				sims[i] = s.simulateOne(ctx, series, cand, basePnLs, report.BlockLength, i)
			}
		}()
	}
	for i := 0; i < s.cfg.Simulations; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.Percentiles = metricPercentiles(sims)
	report.Robustness = s.robustness(sims, report.Percentiles)
	report.GatePassed = s.gate(report.Percentiles)

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"candidate":  cand.ID,
			"block_len":  report.BlockLength,
			"robustness": report.Robustness,
			"gate":       report.GatePassed,
		}).Info("Monte Carlo simulation complete")
	}
	return report, nil
}

// simulateOne applies the enabled stress mechanisms for one draw
func (s *MonteCarloSimulator) simulateOne(ctx context.Context, series *dataset.Series, cand *models.Candidate, basePnLs []float64, blockLen, sim int) models.PerformanceMetrics {
	rng := rand.New(rand.NewSource(params.DeriveSeed(s.cfg.Seed, StageMonteCarlo, sim+1)))

	pnls := basePnLs
	if s.cfg.ParamPerturb {
		perturbed := params.Perturb(s.space, cand.Params, s.cfg.PerturbStd, rng)
		if trades, err := s.strategy.Evaluate(ctx, perturbed, series.FullRange(), rng.Int63()); err == nil {
			pnls = models.PnLs(trades)
		}
	}

	pnls = composeResamples(pnls, blockLen, s.cfg.BlockBootstrap, s.cfg.TradeResample, rng)

	if s.cfg.ExecutionNoise {
		pnls = s.applyExecutionNoise(pnls, rng)
	}

	trades := make([]models.TradeOutcome, len(pnls))
	for i, pnl := range pnls {
		trades[i] = models.TradeOutcome{PnL: pnl}
	}
	return s.evaluator.Calculate(trades)
}

// composeResamples applies the enabled resampling mechanisms in
// sequence: the trade order is block-bootstrapped first, then drawn
// again within its win/loss structure. With neither enabled it copies.
func composeResamples(pnls []float64, blockLen int, bootstrap, structured bool, rng *rand.Rand) []float64 {
	if bootstrap {
		pnls = blockBootstrap(pnls, blockLen, rng)
	}
	if structured {
		pnls = resampleStructured(pnls, rng)
	}
	if !bootstrap && !structured {
		pnls = append([]float64{}, pnls...)
	}
	return pnls
}

// applyExecutionNoise injects slippage and spread-widening costs.
// Spread events are Poisson and always cost money.
func (s *MonteCarloSimulator) applyExecutionNoise(pnls []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(pnls))
	for i, pnl := range pnls {
		noisy := pnl + rng.NormFloat64()*s.cfg.SlippageStd*math.Abs(pnl)
		events := poisson(rng, s.cfg.SpreadLambda)
		if events > 0 {
			noisy -= float64(events) * s.cfg.SpreadExpansion * math.Abs(pnl)
		}
		out[i] = noisy
	}
	return out
}

func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	limit := math.Exp(-lambda)
	product := rng.Float64()
	count := 0
	for product > limit {
		count++
		product *= rng.Float64()
	}
	return count
}

var percentileLevels = map[string]float64{
	"p5": 0.05, "p25": 0.25, "p50": 0.50, "p75": 0.75, "p95": 0.95,
}

func metricPercentiles(sims []models.PerformanceMetrics) map[string]map[string]float64 {
	series := map[string][]float64{
		"profit_factor": {}, "sortino": {}, "calmar": {}, "max_drawdown": {},
		"sqn": {}, "win_rate": {}, "expectancy_r": {}, "total_return": {},
	}
	for _, m := range sims {
		series["profit_factor"] = append(series["profit_factor"], m.ProfitFactor)
		series["sortino"] = append(series["sortino"], m.SortinoRatio)
		series["calmar"] = append(series["calmar"], m.CalmarRatio)
		series["max_drawdown"] = append(series["max_drawdown"], m.MaxDrawdown)
		series["sqn"] = append(series["sqn"], m.SQN)
		series["win_rate"] = append(series["win_rate"], m.WinRate)
		series["expectancy_r"] = append(series["expectancy_r"], m.ExpectancyR)
		series["total_return"] = append(series["total_return"], m.TotalReturn)
	}

	out := make(map[string]map[string]float64, len(series))
	for metric, values := range series {
		levels := make(map[string]float64, len(percentileLevels))
		for name, p := range percentileLevels {
			levels[name] = perf.Percentile(values, p)
		}
		out[metric] = levels
	}
	return out
}

// robustness blends tail quality into a single [0, 1] score
func (s *MonteCarloSimulator) robustness(sims []models.PerformanceMetrics, pct map[string]map[string]float64) float64 {
	pfs := make([]float64, len(sims))
	for i, m := range sims {
		pfs[i] = m.ProfitFactor
	}
	pfMean := 0.0
	for _, v := range pfs {
		pfMean += v
	}
	pfMean /= float64(len(pfs))
	pfCV := 0.0
	if pfMean != 0 {
		variance := 0.0
		for _, v := range pfs {
			diff := v - pfMean
			variance += diff * diff
		}
		pfCV = math.Sqrt(variance/float64(len(pfs))) / math.Abs(pfMean)
	}

	components := []float64{
		math.Min(pct["profit_factor"]["p5"]/2.0, 1.0),
		math.Min(pct["sortino"]["p5"]/1.5, 1.0),
		1.0 / (1.0 + pfCV),
		math.Max(0, 1.0-pct["max_drawdown"]["p95"]/0.3),
	}
	total := 0.0
	for _, c := range components {
		total += c
	}
	return total / float64(len(components))
}

func (s *MonteCarloSimulator) gate(pct map[string]map[string]float64) bool {
	return pct["profit_factor"]["p5"] >= s.cfg.GateProfitFactorP5 &&
		pct["sortino"]["p5"] >= s.cfg.GateSortinoP5 &&
		pct["calmar"]["p5"] >= s.cfg.GateCalmarP5 &&
		pct["max_drawdown"]["p95"] <= s.cfg.GateDrawdownP95 &&
		pct["sqn"]["p50"] >= s.cfg.GateSQNP50
}

// Run simulates every candidate and annotates its robustness
func (s *MonteCarloSimulator) Run(ctx context.Context, series *dataset.Series, candidates []*models.Candidate) ([]*models.Candidate, []MonteCarloReport, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("monte carlo simulation requires candidates: %w", models.ErrStageFailed)
	}

	passed := []*models.Candidate{}
	failed := []*models.Candidate{}
	reports := make([]MonteCarloReport, 0, len(candidates))
	for _, cand := range candidates {
		report, err := s.Simulate(ctx, series, cand)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, report)

		annotated := cand.Clone()
		annotated.Robustness = report.Robustness
		if report.GatePassed {
			passed = append(passed, annotated)
		} else {
			failed = append(failed, annotated)
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"candidate":  cand.ID,
					"robustness": report.Robustness,
				}).Warn("Candidate failed Monte Carlo gate")
			}
		}
	}

	if len(passed) > 0 {
		return passed, reports, nil
	}
	return failed, reports, nil
}
