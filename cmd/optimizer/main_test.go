package main

import (
	"testing"

	"github.com/yourusername/strategy-optimizer/internal/config"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

func TestPipelineConfigMapsValidationKnobs(t *testing.T) {
	prev := cfg
	defer func() { cfg = prev }()

	loaded, err := config.LoadWithDefaults("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	loaded.Optimization.SamplerMethod = "lhs"
	loaded.Validation.PurgeFraction = 0.04
	loaded.Validation.EmbargoMultiplier = 3.0
	loaded.Validation.BootstrapResamples = 250
	loaded.Validation.SignificanceLevel = 0.1
	loaded.Validation.MCBlockBootstrap = false
	loaded.Validation.MCTradeResample = false
	loaded.Validation.MCExecutionNoise = true
	loaded.Validation.MCParamPerturb = false
	cfg = loaded

	pc := pipelineConfig()
	if pc.SamplerMethod != params.SamplerLHS {
		t.Errorf("sampler method = %q, want %q", pc.SamplerMethod, params.SamplerLHS)
	}
	if pc.PurgeFraction != 0.04 {
		t.Errorf("purge fraction = %v, want 0.04", pc.PurgeFraction)
	}
	if pc.EmbargoMultiplier != 3.0 {
		t.Errorf("embargo multiplier = %v, want 3.0", pc.EmbargoMultiplier)
	}
	if pc.BootstrapResamples != 250 {
		t.Errorf("bootstrap resamples = %d, want 250", pc.BootstrapResamples)
	}
	if pc.SignificanceLevel != 0.1 {
		t.Errorf("significance level = %v, want 0.1", pc.SignificanceLevel)
	}
	if pc.MCBlockBootstrap || pc.MCTradeResample || pc.MCParamPerturb {
		t.Errorf("disabled Monte Carlo toggles leaked through: %+v", pc)
	}
	if !pc.MCExecutionNoise {
		t.Errorf("execution noise toggle lost")
	}
}

func TestPipelineConfigDefaults(t *testing.T) {
	prev := cfg
	defer func() { cfg = prev }()

	loaded, err := config.LoadWithDefaults("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	cfg = loaded

	pc := pipelineConfig()
	if pc.SamplerMethod != params.SamplerSobol {
		t.Errorf("default sampler = %q, want %q", pc.SamplerMethod, params.SamplerSobol)
	}
	if !pc.MCBlockBootstrap || !pc.MCTradeResample || !pc.MCExecutionNoise || !pc.MCParamPerturb {
		t.Errorf("default Monte Carlo toggles should all be enabled: %+v", pc)
	}
	if pc.BootstrapResamples != 1000 {
		t.Errorf("default bootstrap resamples = %d, want 1000", pc.BootstrapResamples)
	}
}
