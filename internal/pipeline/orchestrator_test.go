package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

func testSpace(t *testing.T) *params.Space {
	t.Helper()
	space, err := params.NewSpace(
		params.Definition{Name: "period", Kind: params.KindInt, Min: 5, Max: 50},
		params.Definition{Name: "threshold", Kind: params.KindFloat, Min: 0.1, Max: 2.0},
	)
	if err != nil {
		t.Fatalf("failed to build space: %v", err)
	}
	return space
}

func testSeries(t *testing.T, bars int) *dataset.Series {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]dataset.Candle, bars)
	price := 100.0
	for i := range candles {
		price += math.Sin(float64(i)/40.0) * 0.6
		candles[i] = dataset.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.1,
			Volume: 500,
		}
	}
	series, err := dataset.NewSeries(candles, time.Hour)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}
	return series
}

func testConfig(statePath string) Config {
	cfg := DefaultConfig()
	cfg.Samples = 40
	cfg.Trials = 10
	cfg.MaxCandidates = 6
	cfg.FinalCandidates = 3
	cfg.WFOSlices = 3
	cfg.WFOTrainDays = 30
	cfg.WFOTestDays = 10
	cfg.MCSimulations = 40
	cfg.Workers = 2
	cfg.StageTimeout = 2 * time.Minute
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.StatePath = statePath
	cfg.Seed = 21
	return cfg
}

func TestRunCompletesEveryStage(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	space := testSpace(t)
	series := testSeries(t, 3000)
	statePath := filepath.Join(t.TempDir(), "run.json")

	o, err := New(testConfig(statePath), strategy.NewSynthetic(space), space, series, nil)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	var mu sync.Mutex
	seen := map[string]float64{}
	o.OnProgress(func(stage string, fraction float64, message string) {
		mu.Lock()
		seen[stage] = fraction
		mu.Unlock()
	})

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.RunID == "" {
		t.Error("missing run ID")
	}
	if len(result.Candidates) == 0 {
		t.Fatal("pipeline must never finish empty")
	}
	if len(result.Recommended) > 2 {
		t.Errorf("recommended %d candidates, want at most 2", len(result.Recommended))
	}
	if result.Degraded {
		for _, cand := range result.Candidates {
			if cand.Recommended {
				t.Error("degraded runs must not recommend candidates")
			}
		}
	}
	for _, cand := range result.Candidates {
		if cand.FinalRanking < 1 {
			t.Errorf("candidate %s has no final ranking", cand.ID)
		}
	}

	for _, stage := range stageOrder {
		recorded, ok := o.State().StageResult(stage)
		if !ok {
			t.Errorf("stage %s never recorded", stage)
			continue
		}
		if recorded.Status != StatusCompleted {
			t.Errorf("stage %s status = %q, want %q", stage, recorded.Status, StatusCompleted)
		}
		mu.Lock()
		if seen[stage] != 1 {
			t.Errorf("stage %s progress = %v, want 1", stage, seen[stage])
		}
		mu.Unlock()
	}

	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state snapshot missing: %v", err)
	}
	loaded, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if len(loaded.Candidates) == 0 {
		t.Error("snapshot lost the final candidates")
	}
}

func TestRunDeterministicWithSeed(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	space := testSpace(t)
	series := testSeries(t, 3000)

	run := func() *Result {
		o, err := New(testConfig(""), strategy.NewSynthetic(space), space, series, nil)
		if err != nil {
			t.Fatalf("failed to build orchestrator: %v", err)
		}
		result, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return result
	}

	first := run()
	second := run()
	if len(first.Candidates) != len(second.Candidates) {
		t.Fatalf("candidate counts differ: %d vs %d", len(first.Candidates), len(second.Candidates))
	}
	for i := range first.Candidates {
		if first.Candidates[i].Params.Hash() != second.Candidates[i].Params.Hash() {
			t.Errorf("candidate %d parameters differ between identical runs", i)
		}
	}
}

func TestRunRetriesThenFails(t *testing.T) {
	space := testSpace(t)
	series := testSeries(t, 3000)

	broken := strategy.Func{
		StrategyName: "broken",
		Fn: func(ctx context.Context, set params.Set, window dataset.Range, seed int64) ([]models.TradeOutcome, error) {
			return nil, errors.New("exchange unavailable")
		},
	}

	cfg := testConfig("")
	cfg.MaxRetries = 2
	o, err := New(cfg, broken, space, series, nil)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	_, err = o.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure when every evaluation errors")
	}
	if !errors.Is(err, models.ErrStageFailed) {
		t.Errorf("error %v does not wrap stage failure", err)
	}

	recorded, ok := o.State().StageResult(StageGlobalOpt)
	if !ok {
		t.Fatal("failed stage never recorded")
	}
	if recorded.Status != StatusFailed {
		t.Errorf("status = %q, want %q", recorded.Status, StatusFailed)
	}
	if recorded.RetryCount != cfg.MaxRetries {
		t.Errorf("retry count = %d, want %d", recorded.RetryCount, cfg.MaxRetries)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	space := testSpace(t)
	series := testSeries(t, 3000)

	o, err := New(testConfig(""), strategy.NewSynthetic(space), space, series, nil)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Run(ctx); err == nil {
		t.Fatal("expected error from a cancelled context")
	}
}

func TestStageConfigsCarryPipelineKnobs(t *testing.T) {
	space := testSpace(t)
	series := testSeries(t, 3000)

	cfg := testConfig("")
	cfg.SamplerMethod = params.SamplerLHS
	cfg.PurgeFraction = 0.04
	cfg.EmbargoMultiplier = 3.0
	cfg.BootstrapResamples = 250
	cfg.SignificanceLevel = 0.1
	cfg.MCBlockBootstrap = false
	cfg.MCTradeResample = false
	cfg.MCExecutionNoise = false
	cfg.MCParamPerturb = false

	o, err := New(cfg, strategy.NewSynthetic(space), space, series, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := o.globalConfig().Method; got != params.SamplerLHS {
		t.Errorf("global sampler = %q, want %q", got, params.SamplerLHS)
	}
	ts := o.timeseriesConfig()
	if ts.PurgeFraction != 0.04 {
		t.Errorf("purge fraction = %v, want 0.04", ts.PurgeFraction)
	}
	if ts.EmbargoMultiple != 3.0 {
		t.Errorf("embargo multiple = %v, want 3.0", ts.EmbargoMultiple)
	}
	mc := o.monteCarloConfig()
	if mc.BlockBootstrap || mc.TradeResample || mc.ExecutionNoise || mc.ParamPerturb {
		t.Errorf("monte carlo toggles = %+v, want all disabled", mc)
	}
	st := o.statisticalConfig()
	if st.Resamples != 250 {
		t.Errorf("bootstrap resamples = %d, want 250", st.Resamples)
	}
	if st.Alpha != 0.1 {
		t.Errorf("significance level = %v, want 0.1", st.Alpha)
	}
}
