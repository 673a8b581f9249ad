package validate

import (
	"context"
	"testing"

	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/optimize"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

func testWalkForwardConfig() WalkForwardConfig {
	cfg := DefaultWalkForwardConfig()
	cfg.Slices = 4
	cfg.TrainDays = 30
	cfg.TestDays = 10
	cfg.RefineTrials = 4
	cfg.MinOOSTrades = 40
	cfg.Workers = 2
	cfg.Seed = 11
	return cfg
}

func TestBuildSlicesLayout(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 2000) // hourly bars, 24 per day

	runner, err := optimize.NewRunner(strat, perf.NewEvaluator(), nil, StageWalkForward)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}
	w, err := NewWalkForwardAnalyzer(runner, space, testWalkForwardConfig(), nil)
	if err != nil {
		t.Fatalf("failed to build analyzer: %v", err)
	}

	slices, err := w.BuildSlices(series)
	if err != nil {
		t.Fatalf("BuildSlices failed: %v", err)
	}
	if len(slices) < 2 {
		t.Fatalf("expected at least 2 slices, got %d", len(slices))
	}

	trainBars := 30 * 24
	testBars := 10 * 24
	for i, s := range slices {
		if s.Train.Len() != trainBars {
			t.Errorf("slice %d train length = %d, want %d", i, s.Train.Len(), trainBars)
		}
		if s.Test.Len() != testBars {
			t.Errorf("slice %d test length = %d, want %d", i, s.Test.Len(), testBars)
		}
		if s.Test.Start != s.Train.End {
			t.Errorf("slice %d test must start where train ends: %d vs %d", i, s.Test.Start, s.Train.End)
		}
		if s.Test.End > series.Len() {
			t.Errorf("slice %d test end %d past series length %d", i, s.Test.End, series.Len())
		}
		if i > 0 && s.Train.Start <= slices[i-1].Train.Start {
			t.Errorf("slice %d does not advance past slice %d", i, i-1)
		}
	}
}

func TestBuildSlicesInsufficientData(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 200)

	runner, err := optimize.NewRunner(strat, perf.NewEvaluator(), nil, StageWalkForward)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}
	w, err := NewWalkForwardAnalyzer(runner, space, testWalkForwardConfig(), nil)
	if err != nil {
		t.Fatalf("failed to build analyzer: %v", err)
	}
	if _, err := w.BuildSlices(series); err == nil {
		t.Fatal("expected error for a series that cannot fit one slice")
	}
}

func TestAnalyzeProducesRegimeStats(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 2000)

	runner, err := optimize.NewRunner(strat, perf.NewEvaluator(), nil, StageWalkForward)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}
	w, err := NewWalkForwardAnalyzer(runner, space, testWalkForwardConfig(), nil)
	if err != nil {
		t.Fatalf("failed to build analyzer: %v", err)
	}

	report, err := w.Analyze(context.Background(), series, optimumCandidate(space))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(report.Slices) < 2 {
		t.Fatalf("expected at least 2 slice results, got %d", len(report.Slices))
	}
	if len(report.RegimeStats) == 0 {
		t.Fatal("expected regime statistics")
	}
	total := 0
	for _, stats := range report.RegimeStats {
		total += stats.Count
	}
	if total != len(report.Slices) {
		t.Errorf("regime counts sum to %d, want %d", total, len(report.Slices))
	}
	for i, s := range report.Slices {
		if s.Regime == "" {
			t.Errorf("slice %d has no regime label", i)
		}
		if len(s.Params) == 0 {
			t.Errorf("slice %d has no re-optimized parameters", i)
		}
	}
	if report.TotalTrades == 0 {
		t.Error("expected out-of-sample trades")
	}
}

func TestRunNeverReturnsEmpty(t *testing.T) {
	space := testSpace(t)
	strat := strategy.NewSynthetic(space)
	series := testSeries(t, 2000)

	runner, err := optimize.NewRunner(strat, perf.NewEvaluator(), nil, StageWalkForward)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}

	// Unreachable gate: every candidate fails but the stage still
	// hands the annotated set forward.
	cfg := testWalkForwardConfig()
	cfg.GateProfitFactor = 999
	w, err := NewWalkForwardAnalyzer(runner, space, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build analyzer: %v", err)
	}

	out, reports, err := w.Run(context.Background(), series, []*models.Candidate{optimumCandidate(space)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the failed candidate back, got %d candidates", len(out))
	}
	if out[0].Source != models.SourceWalkForward {
		t.Errorf("source = %q, want %q", out[0].Source, models.SourceWalkForward)
	}
	if reports[0].GatePassed {
		t.Error("gate should not pass with an unreachable profit factor threshold")
	}
	found := false
	for _, f := range reports[0].GateFailures {
		if f == "profit_factor" {
			found = true
		}
	}
	if !found {
		t.Errorf("gate failures %v missing profit_factor", reports[0].GateFailures)
	}
}
