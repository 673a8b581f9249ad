package optimize

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

func testSpace(t *testing.T) *params.Space {
	t.Helper()
	space, err := params.NewSpace(
		params.Definition{Name: "lookback", Kind: params.KindInt, Min: 5, Max: 100},
		params.Definition{Name: "stop_atr_mult", Kind: params.KindFloat, Min: 0.5, Max: 8.0, LogScale: true},
		params.Definition{Name: "rr_percentile", Kind: params.KindFloat, Min: 0.1, Max: 0.9, LogScale: true},
	)
	if err != nil {
		t.Fatalf("NewSpace failed: %v", err)
	}
	return space
}

func testSeries(t *testing.T, n int) *dataset.Series {
	t.Helper()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]dataset.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.3 * math.Sin(float64(i)*0.5)
		candles[i] = dataset.Candle{
			Time: start.Add(time.Duration(i) * time.Hour),
			Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: 100,
		}
	}
	series, err := dataset.NewSeries(candles, time.Hour)
	if err != nil {
		t.Fatalf("NewSeries failed: %v", err)
	}
	return series
}

func testRunner(t *testing.T, space *params.Space) *Runner {
	t.Helper()
	runner, err := NewRunner(strategy.NewSynthetic(space), perf.NewEvaluator(), NewEvalCache(time.Hour), StageGlobalSearch)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return runner
}

func runGlobal(t *testing.T, seed int64) []*models.Candidate {
	t.Helper()
	space := testSpace(t)
	cfg := DefaultGlobalConfig()
	cfg.Samples = 40
	cfg.Workers = 2
	cfg.Seed = seed

	search, err := NewGlobalSearch(testRunner(t, space), space, cfg, nil)
	if err != nil {
		t.Fatalf("NewGlobalSearch failed: %v", err)
	}
	candidates, err := search.Run(context.Background(), testSeries(t, 4000))
	if err != nil {
		t.Fatalf("global search failed: %v", err)
	}
	return candidates
}

func TestGlobalSearchProducesRankedSurvivors(t *testing.T) {
	candidates := runGlobal(t, 7)
	if len(candidates) < 5 {
		t.Fatalf("got %d survivors, want at least 5", len(candidates))
	}
	for _, c := range candidates {
		if c.Source != models.SourceGlobalSearch {
			t.Errorf("candidate source: got %s", c.Source)
		}
		if len(c.Params) != 3 {
			t.Errorf("candidate has %d params, want 3", len(c.Params))
		}
	}
}

func TestGlobalSearchDeterministicInSeed(t *testing.T) {
	a := runGlobal(t, 11)
	b := runGlobal(t, 11)
	if len(a) != len(b) {
		t.Fatalf("survivor counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Params.Hash() != b[i].Params.Hash() {
			t.Fatalf("survivor %d params differ across identical seeds", i)
		}
		if a[i].Score != b[i].Score {
			t.Fatalf("survivor %d score differs across identical seeds", i)
		}
	}
}

func TestKeepFraction(t *testing.T) {
	pool := []scored{
		{ordinal: 0, outcome: Outcome{RawScore: 1}},
		{ordinal: 1, outcome: Outcome{RawScore: 5}},
		{ordinal: 2, outcome: Outcome{RawScore: 3}},
		{ordinal: 3, outcome: Outcome{RawScore: 2}},
	}
	kept := keepFraction(pool, 0.5, 1)
	if len(kept) != 2 {
		t.Fatalf("got %d kept, want 2", len(kept))
	}
	if kept[0].outcome.RawScore != 5 || kept[1].outcome.RawScore != 3 {
		t.Errorf("kept wrong candidates: %+v", kept)
	}

	// Minimum keeps at least min even when the fraction rounds to zero.
	if got := keepFraction(pool, 0.01, 3); len(got) != 3 {
		t.Errorf("min keep: got %d, want 3", len(got))
	}
}

func TestRunnerMemoizes(t *testing.T) {
	space := testSpace(t)
	runner := testRunner(t, space)
	window := dataset.Range{Start: 0, End: 2000}
	set := params.Set{"lookback": 40, "stop_atr_mult": 2.0, "rr_percentile": 0.3}

	a := runner.Run(context.Background(), set, window, 5)
	b := runner.Run(context.Background(), set, window, 5)
	if a.Score != b.Score || a.Metrics.TradeCount != b.Metrics.TradeCount {
		t.Error("memoized outcome differs from original")
	}
	if runner.cache.ItemCount() != 1 {
		t.Errorf("cache items: got %d, want 1", runner.cache.ItemCount())
	}
}

func TestRunManyRespectsCancellation(t *testing.T) {
	space := testSpace(t)
	runner := testRunner(t, space)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sets := []params.Set{
		{"lookback": 40, "stop_atr_mult": 2.0, "rr_percentile": 0.3},
		{"lookback": 50, "stop_atr_mult": 1.0, "rr_percentile": 0.5},
	}
	outcomes := runner.RunMany(ctx, sets, dataset.Range{Start: 0, End: 1000}, []int64{1, 2}, 2)
	for i, out := range outcomes {
		if out.Status != StatusFailed {
			t.Errorf("outcome %d: got status %s, want failed", i, out.Status)
		}
	}
}
