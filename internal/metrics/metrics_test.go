package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitRegistryIdempotent(t *testing.T) {
	a := InitRegistry()
	b := InitRegistry()
	if a != b {
		t.Fatal("InitRegistry should return the same registry")
	}
	if GetRegistry() != a {
		t.Fatal("GetRegistry should return the initialized registry")
	}
}

func TestHandlerExposesPipelineMetrics(t *testing.T) {
	RecordEvaluation("global_search", "scored", 0.1)
	RecordPrune("global_search")
	RecordStageDuration("global_search", 2.5)
	BestCandidateScore.Set(1.23)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"strategy_optimizer_evaluations_total",
		"strategy_optimizer_prunes_total",
		"strategy_optimizer_stage_duration_seconds",
		"strategy_optimizer_best_candidate_score",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
