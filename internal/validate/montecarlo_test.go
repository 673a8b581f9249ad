package validate

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

func TestBlockBootstrapPreservesLength(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float64, 137)
	for i := range values {
		values[i] = float64(i)
	}

	for _, blockLen := range []int{1, 5, 50, 137, 500} {
		out := blockBootstrap(values, blockLen, rng)
		if len(out) != len(values) {
			t.Errorf("block length %d: got %d values, want %d", blockLen, len(out), len(values))
		}
	}
}

func TestResampleStructuredPreservesCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	values := []float64{10, -5, 20, -3, 0, 15, -8, 0, 30, -1}

	wins, losses, zeros := 0, 0, 0
	for _, v := range values {
		switch {
		case v > 0:
			wins++
		case v < 0:
			losses++
		default:
			zeros++
		}
	}

	out := resampleStructured(values, rng)
	if len(out) != len(values) {
		t.Fatalf("got %d values, want %d", len(out), len(values))
	}
	gotWins, gotLosses, gotZeros := 0, 0, 0
	for _, v := range out {
		switch {
		case v > 0:
			gotWins++
		case v < 0:
			gotLosses++
		default:
			gotZeros++
		}
	}
	if gotWins != wins || gotLosses != losses || gotZeros != zeros {
		t.Errorf("counts changed: wins %d->%d, losses %d->%d, zeros %d->%d",
			wins, gotWins, losses, gotLosses, zeros, gotZeros)
	}
}

func TestBlockLengthFromACFBounds(t *testing.T) {
	// White noise should stay at the minimum block length.
	rng := rand.New(rand.NewSource(3))
	noise := make([]float64, 500)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}
	if got := blockLengthFromACF(noise); got < 5 || got > 50 {
		t.Errorf("block length %d outside [5, 50]", got)
	}

	// A strongly trending series must still respect the cap.
	trend := make([]float64, 500)
	for i := range trend {
		trend[i] = float64(i)
	}
	if got := blockLengthFromACF(trend); got > 50 {
		t.Errorf("block length %d above cap 50", got)
	}
}

func TestSimulateReportShape(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 2000)

	cfg := DefaultMonteCarloConfig()
	cfg.Simulations = 60
	cfg.Workers = 2
	cfg.Seed = 5
	sim, err := NewMonteCarloSimulator(strat, perf.NewEvaluator(), space, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build simulator: %v", err)
	}

	report, err := sim.Simulate(context.Background(), series, optimumCandidate(space))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if report.Simulations != cfg.Simulations {
		t.Errorf("simulations = %d, want %d", report.Simulations, cfg.Simulations)
	}
	if report.BlockLength < 5 || report.BlockLength > 50 {
		t.Errorf("block length %d outside [5, 50]", report.BlockLength)
	}
	if report.Robustness < 0 || report.Robustness > 1 {
		t.Errorf("robustness %v outside [0, 1]", report.Robustness)
	}

	for _, metric := range []string{"profit_factor", "sortino", "calmar", "max_drawdown", "sqn"} {
		levels, ok := report.Percentiles[metric]
		if !ok {
			t.Fatalf("missing percentiles for %s", metric)
		}
		keys := make([]string, 0, len(levels))
		for k := range levels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) != 5 {
			t.Errorf("%s has %d percentile levels, want 5", metric, len(keys))
		}
		if levels["p5"] > levels["p95"] {
			t.Errorf("%s p5 %v above p95 %v", metric, levels["p5"], levels["p95"])
		}
	}
}

func TestSimulateDeterministicWithSeed(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 2000)

	cfg := DefaultMonteCarloConfig()
	cfg.Simulations = 40
	cfg.Workers = 3
	cfg.Seed = 9
	sim, err := NewMonteCarloSimulator(strat, perf.NewEvaluator(), space, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build simulator: %v", err)
	}

	cand := optimumCandidate(space)
	first, err := sim.Simulate(context.Background(), series, cand)
	if err != nil {
		t.Fatalf("first Simulate failed: %v", err)
	}
	second, err := sim.Simulate(context.Background(), series, cand)
	if err != nil {
		t.Fatalf("second Simulate failed: %v", err)
	}
	if first.Robustness != second.Robustness {
		t.Errorf("robustness not deterministic: %v vs %v", first.Robustness, second.Robustness)
	}
	if first.Percentiles["profit_factor"]["p50"] != second.Percentiles["profit_factor"]["p50"] {
		t.Error("profit factor median not deterministic across identical runs")
	}
}

// gatedStrategy is profitable only when threshold sits above 1.0, so
// one candidate pool can hold both gate-passing and gate-failing sets.
func gatedStrategy() strategy.Func {
	return strategy.Func{
		StrategyName: "threshold-edge",
		Fn: func(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error) {
			trades := make([]models.TradeOutcome, 0, 100)
			for i := 0; i < 100; i++ {
				pnl := 80.0 + 5.0*math.Sin(float64(i))
				if i%5 == 4 {
					pnl = -10.0
				}
				if set.Float("threshold") < 1.0 {
					pnl = -10.0 + 3.0*math.Sin(float64(i)*1.7)
				}
				trades = append(trades, models.TradeOutcome{PnL: pnl, EntryIndex: window.Start + i, ExitIndex: window.Start + i + 2})
			}
			return trades, nil
		},
	}
}

func TestRunFiltersGateFailures(t *testing.T) {
	space := testSpace(t)
	series := testSeries(t, 1200)

	cfg := DefaultMonteCarloConfig()
	cfg.Simulations = 40
	cfg.Workers = 2
	cfg.Seed = 17
	sim, err := NewMonteCarloSimulator(gatedStrategy(), perf.NewEvaluator(), space, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build simulator: %v", err)
	}

	pass := models.NewCandidate(space.Sanitize(params.Set{"period": 20, "threshold": 1.8}), models.SourceLocalRefinement)
	fail := models.NewCandidate(space.Sanitize(params.Set{"period": 20, "threshold": 0.2}), models.SourceLocalRefinement)

	out, reports, err := sim.Run(context.Background(), series, []*models.Candidate{pass, fail})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
	if !reports[0].GatePassed {
		t.Error("profitable candidate should pass the gate")
	}
	if reports[1].GatePassed {
		t.Error("losing candidate should fail the gate")
	}
	if len(out) != 1 {
		t.Fatalf("got %d surviving candidates, want 1", len(out))
	}
	if out[0].ID != pass.ID {
		t.Errorf("survivor = %s, want %s", out[0].ID, pass.ID)
	}
}

func TestRunKeepsFailuresWhenNonePass(t *testing.T) {
	space := testSpace(t)
	series := testSeries(t, 1200)

	cfg := DefaultMonteCarloConfig()
	cfg.Simulations = 40
	cfg.Workers = 2
	cfg.Seed = 17
	sim, err := NewMonteCarloSimulator(losingStrategy(), perf.NewEvaluator(), space, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build simulator: %v", err)
	}

	cand := optimumCandidate(space)
	out, reports, err := sim.Run(context.Background(), series, []*models.Candidate{cand})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if reports[0].GatePassed {
		t.Fatal("losing candidate should fail the gate")
	}
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want the annotated failure back", len(out))
	}
	if out[0].ID != cand.ID {
		t.Errorf("fallback candidate = %s, want %s", out[0].ID, cand.ID)
	}
	if out[0].Robustness != reports[0].Robustness {
		t.Error("fallback candidate should carry its simulated robustness")
	}
}

func TestComposeResamplesAppliesBothInSequence(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = float64(i) - 29.5
	}

	rngGot := rand.New(rand.NewSource(9))
	rngWant := rand.New(rand.NewSource(9))
	got := composeResamples(values, 7, true, true, rngGot)
	want := resampleStructured(blockBootstrap(values, 7, rngWant), rngWant)

	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("value %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// With neither mechanism enabled the input is copied, not aliased.
	plain := composeResamples(values, 7, false, false, rngGot)
	plain[0] = 999
	if values[0] == 999 {
		t.Error("disabled resampling must not alias the input slice")
	}
}
