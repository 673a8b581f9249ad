package optimize

import (
	"context"
	"testing"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

func seedSurvivors(space *params.Space, sets []params.Set) []*models.Candidate {
	out := make([]*models.Candidate, len(sets))
	for i, set := range sets {
		c := models.NewCandidate(space.Sanitize(set), models.SourceGlobalSearch)
		c.Score = float64(len(sets) - i)
		out[i] = c
	}
	return out
}

func TestLocalRefinementReturnsStableFinalists(t *testing.T) {
	space := testSpace(t)
	cfg := DefaultLocalConfig()
	cfg.Trials = 18
	cfg.SeedTrials = 4
	cfg.FinalPool = 6
	cfg.FinalKeep = 3
	cfg.Seed = 13

	survivors := seedSurvivors(space, []params.Set{
		{"lookback": 50, "stop_atr_mult": 2.0, "rr_percentile": 0.3},
		{"lookback": 55, "stop_atr_mult": 1.8, "rr_percentile": 0.32},
		{"lookback": 45, "stop_atr_mult": 2.2, "rr_percentile": 0.28},
		{"lookback": 60, "stop_atr_mult": 2.1, "rr_percentile": 0.35},
	})

	refine, err := NewLocalRefinement(testRunner(t, space).WithStage(StageLocalRefinement), space, cfg, nil)
	if err != nil {
		t.Fatalf("NewLocalRefinement failed: %v", err)
	}

	window := dataset.Range{Start: 0, End: 4000}
	finalists, err := refine.Run(context.Background(), window, survivors)
	if err != nil {
		t.Fatalf("refinement failed: %v", err)
	}
	if len(finalists) != 3 {
		t.Fatalf("got %d finalists, want 3", len(finalists))
	}
	for i := 1; i < len(finalists); i++ {
		if finalists[i].Score > finalists[i-1].Score {
			t.Errorf("finalists not sorted: %v then %v", finalists[i-1].Score, finalists[i].Score)
		}
	}
	for _, f := range finalists {
		if err := space.Validate(f.Params); err != nil {
			t.Errorf("finalist params invalid: %v", err)
		}
		if f.Source != models.SourceLocalRefinement {
			t.Errorf("finalist source: got %s", f.Source)
		}
	}
}

func TestLocalRefinementRequiresSurvivors(t *testing.T) {
	space := testSpace(t)
	refine, err := NewLocalRefinement(testRunner(t, space), space, DefaultLocalConfig(), nil)
	if err != nil {
		t.Fatalf("NewLocalRefinement failed: %v", err)
	}
	if _, err := refine.Run(context.Background(), dataset.Range{Start: 0, End: 100}, nil); err == nil {
		t.Fatal("expected error without survivors")
	}
}

func TestFocusRegionClampedToSpace(t *testing.T) {
	space := testSpace(t)
	cfg := DefaultLocalConfig()
	cfg.TopK = 3
	refine, err := NewLocalRefinement(testRunner(t, space), space, cfg, nil)
	if err != nil {
		t.Fatalf("NewLocalRefinement failed: %v", err)
	}

	// Survivors hugging the upper bound: the region must not escape it.
	survivors := seedSurvivors(space, []params.Set{
		{"lookback": 98, "stop_atr_mult": 7.9, "rr_percentile": 0.89},
		{"lookback": 99, "stop_atr_mult": 7.8, "rr_percentile": 0.88},
		{"lookback": 100, "stop_atr_mult": 8.0, "rr_percentile": 0.9},
	})
	for _, b := range refine.focusRegion(survivors) {
		if b.min < b.def.Min || b.max > b.def.Max {
			t.Errorf("focus bound for %s escapes space: [%v, %v]", b.def.Name, b.min, b.max)
		}
		if !(b.min < b.max) {
			t.Errorf("degenerate focus bound for %s: [%v, %v]", b.def.Name, b.min, b.max)
		}
	}
}

func TestTPESamplerStaysInBounds(t *testing.T) {
	space := testSpace(t)
	bounds := []focusBound{}
	for _, d := range space.Definitions() {
		bounds = append(bounds, focusBound{def: d, min: d.Min, max: d.Max})
	}
	sampler := newTPESampler(bounds, 3)

	trials := []tpeTrial{}
	for i := 0; i < 30; i++ {
		set := sampler.suggest(trials)
		if err := space.Validate(set); err != nil {
			t.Fatalf("trial %d: suggestion invalid: %v", i, err)
		}
		// Score peaks for mid-range lookback so the model has shape.
		score := -absf(set["lookback"] - 50)
		trials = append(trials, tpeTrial{set: set, score: score})
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
