// Package pipeline coordinates the optimization stages into a single
// resumable run with retries, snapshots and progress reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-optimizer/internal/dataset"
	plogger "github.com/yourusername/strategy-optimizer/internal/logger"
	"github.com/yourusername/strategy-optimizer/internal/metrics"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/optimize"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/perf"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
	"github.com/yourusername/strategy-optimizer/internal/validate"
)

// Stage names in execution order
const (
	StageInitialization   = "initialization"
	StageDataPreparation  = "data_preparation"
	StageGlobalOpt        = "global_optimization"
	StageLocalRefine      = "local_refinement"
	StageTimeSeriesVal    = "timeseries_validation"
	StageWalkForwardVal   = "walkforward_analysis"
	StageMonteCarloSim    = "montecarlo_simulation"
	StageStatisticalVal   = "statistical_validation"
	StagePositionSizing   = "position_sizing"
	StageFinalization     = "finalization"
)

var stageOrder = []string{
	StageInitialization,
	StageDataPreparation,
	StageGlobalOpt,
	StageLocalRefine,
	StageTimeSeriesVal,
	StageWalkForwardVal,
	StageMonteCarloSim,
	StageStatisticalVal,
	StagePositionSizing,
	StageFinalization,
}

// requiredStageKeys lists the data keys each stage must produce for
// the run to continue.
var requiredStageKeys = map[string][]string{
	StageInitialization:  {"run_id", "dimensions"},
	StageDataPreparation: {"bars", "bars_per_day"},
	StageGlobalOpt:       {"candidates"},
	StageLocalRefine:     {"candidates"},
	StageTimeSeriesVal:   {"candidates"},
	StageWalkForwardVal:  {"candidates", "gate_passed"},
	StageMonteCarloSim:   {"candidates"},
	StageStatisticalVal:  {"candidates", "degraded"},
	StagePositionSizing:  {"handoff"},
	StageFinalization:    {"recommended"},
}

// ProgressFunc receives stage progress updates in [0, 1]
type ProgressFunc func(stage string, fraction float64, message string)

// Config holds the pipeline budgets and knobs
type Config struct {
	Samples         int
	Trials          int
	MaxCandidates   int
	FinalCandidates int
	KFolds          int
	WFOSlices       int
	WFOTrainDays    int
	WFOTestDays     int
	MCSimulations   int
	Workers         int
	StageTimeout    time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	CacheTTL        time.Duration
	StatePath       string
	Seed            int64
	MinSeriesBars   int

	SamplerMethod      params.SamplerMethod
	PurgeFraction      float64
	EmbargoMultiplier  float64
	BootstrapResamples int
	SignificanceLevel  float64
	MCBlockBootstrap   bool
	MCTradeResample    bool
	MCExecutionNoise   bool
	MCParamPerturb     bool
}

// DefaultConfig returns the production pipeline settings
func DefaultConfig() Config {
	return Config{
		Samples:         120,
		Trials:          40,
		MaxCandidates:   12,
		FinalCandidates: 5,
		KFolds:          5,
		WFOSlices:       8,
		WFOTrainDays:    270,
		WFOTestDays:     60,
		MCSimulations:   1500,
		Workers:         4,
		StageTimeout:    30 * time.Minute,
		MaxRetries:      3,
		RetryDelay:      5 * time.Second,
		CacheTTL:        time.Hour,
		MinSeriesBars:   500,

		SamplerMethod:      params.SamplerSobol,
		PurgeFraction:      0.01,
		EmbargoMultiplier:  2.0,
		BootstrapResamples: 1000,
		SignificanceLevel:  0.05,
		MCBlockBootstrap:   true,
		MCTradeResample:    true,
		MCExecutionNoise:   true,
		MCParamPerturb:     true,
	}
}

// Result is the terminal output of one pipeline run
type Result struct {
	RunID       string                      `json:"run_id"`
	Candidates  []*models.Candidate         `json:"candidates"`
	Recommended []*models.Candidate         `json:"recommended"`
	Degraded    bool                        `json:"degraded"`
	Statistical validate.StatisticalReport  `json:"statistical"`
	MonteCarlo  []validate.MonteCarloReport `json:"monte_carlo"`
	WalkForward []validate.WalkForwardReport `json:"walk_forward"`
	CrossVal    []validate.CVReport         `json:"cross_validation"`
	Duration    time.Duration               `json:"duration"`
}

// Orchestrator runs the staged optimization pipeline
type Orchestrator struct {
	cfg       Config
	strategy  strategy.Strategy
	space     *params.Space
	series    *dataset.Series
	evaluator *perf.Evaluator
	cache     *optimize.EvalCache
	state     *State
	progress  ProgressFunc
	logger    *logrus.Logger
	plog      *plogger.PipelineLogger

	trialsSpent int
}

// New creates a pipeline orchestrator
func New(cfg Config, strat strategy.Strategy, space *params.Space, series *dataset.Series, logger *logrus.Logger) (*Orchestrator, error) {
	if strat == nil {
		return nil, fmt.Errorf("pipeline requires a strategy")
	}
	if space == nil {
		return nil, fmt.Errorf("pipeline requires a parameter space")
	}
	if series == nil {
		return nil, fmt.Errorf("pipeline requires a bar series")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Minute
	}
	o := &Orchestrator{
		cfg:       cfg,
		strategy:  strat,
		space:     space,
		series:    series,
		evaluator: perf.NewEvaluator(),
		cache:     optimize.NewEvalCache(cfg.CacheTTL),
		state:     NewState(cfg.StatePath),
		logger:    logger,
	}
	if logger != nil {
		o.plog = plogger.NewPipelineLogger(logger)
	}
	return o, nil
}

// OnProgress registers the progress callback
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.progress = fn
}

// State exposes the run record for inspection and snapshots
func (o *Orchestrator) State() *State {
	return o.state
}

func (o *Orchestrator) report(stage string, fraction float64, message string) {
	metrics.StageProgress.Set(fraction)
	if o.progress != nil {
		o.progress(stage, fraction, message)
	}
}

// Run executes every stage in order and returns the final ranking
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: o.state.RunID.String()}

	var candidates []*models.Candidate
	stages := []struct {
		name string
		fn   func(context.Context) (map[string]interface{}, error)
	}{
		{StageInitialization, func(ctx context.Context) (map[string]interface{}, error) {
			return o.initialize(ctx)
		}},
		{StageDataPreparation, func(ctx context.Context) (map[string]interface{}, error) {
			return o.prepareData(ctx)
		}},
		{StageGlobalOpt, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.globalSearch(ctx)
			candidates = out
			return data, err
		}},
		{StageLocalRefine, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.localRefine(ctx, candidates)
			candidates = out
			return data, err
		}},
		{StageTimeSeriesVal, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.timeseriesValidate(ctx, candidates, result)
			candidates = out
			return data, err
		}},
		{StageWalkForwardVal, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.walkForward(ctx, candidates, result)
			candidates = out
			return data, err
		}},
		{StageMonteCarloSim, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.monteCarlo(ctx, candidates, result)
			candidates = out
			return data, err
		}},
		{StageStatisticalVal, func(ctx context.Context) (map[string]interface{}, error) {
			out, data, err := o.statisticalValidate(ctx, candidates, result)
			candidates = out
			return data, err
		}},
		{StagePositionSizing, func(ctx context.Context) (map[string]interface{}, error) {
			return o.positionSizing(candidates)
		}},
		{StageFinalization, func(ctx context.Context) (map[string]interface{}, error) {
			return o.finalize(candidates, result)
		}},
	}

	for i, stage := range stages {
		metrics.ActiveStage.Set(float64(i))
		if o.plog != nil {
			o.plog.LogStageStart(result.RunID, stage.name, len(candidates))
		}
		if err := o.runStage(ctx, stage.name, stage.fn); err != nil {
			metrics.ActiveStage.Set(-1)
			metrics.RecordRun(string(statusForError(err)))
			return nil, fmt.Errorf("stage %s: %w", stage.name, err)
		}
		if o.plog != nil {
			if sr, ok := o.state.StageResult(stage.name); ok {
				o.plog.LogStageComplete(result.RunID, stage.name, len(candidates), sr.RetryCount, sr.Duration)
			}
		}
		o.state.SetCandidates(candidates)
		if err := o.state.Save(); err != nil && o.logger != nil {
			o.logger.WithError(err).Warn("Failed to snapshot pipeline state")
		}
	}
	metrics.ActiveStage.Set(-1)
	metrics.RecordRun(string(StatusCompleted))

	result.Candidates = candidates
	result.Duration = time.Since(start)
	if o.plog != nil {
		o.plog.LogRunComplete(result.RunID, len(result.Recommended), result.Degraded, result.Duration)
	}
	return result, nil
}

func statusForError(err error) StageStatus {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCancelled
	}
	return StatusFailed
}

// runStage executes one stage with timeout, retries and validation
func (o *Orchestrator) runStage(ctx context.Context, name string, fn func(context.Context) (map[string]interface{}, error)) error {
	result := StageResult{Stage: name, Status: StatusRunning, StartedAt: time.Now().UTC()}
	o.state.RecordStage(result)
	o.report(name, 0, "started")

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			result.Status = StatusRetrying
			result.RetryCount = attempt
			o.state.RecordStage(result)
			metrics.RecordStageRetry(name)
			if o.logger != nil {
				o.logger.WithFields(logrus.Fields{
					"stage":   name,
					"attempt": attempt,
					"error":   lastErr,
				}).Warn("Retrying pipeline stage")
			}
			select {
			case <-time.After(o.cfg.RetryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
				result.Status = StatusCancelled
				result.Error = lastErr.Error()
				o.state.RecordStage(result)
				return lastErr
			}
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
		data, err := fn(stageCtx)
		cancel()

		if err == nil {
			err = validateStageData(name, data)
		}
		if err == nil {
			result.Status = StatusCompleted
			result.CompletedAt = time.Now().UTC()
			result.Duration = result.CompletedAt.Sub(result.StartedAt)
			result.Data = data
			o.state.RecordStage(result)
			metrics.RecordStageDuration(name, result.Duration.Seconds())
			o.report(name, 1, "completed")
			return nil
		}

		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
	}

	result.Status = statusForError(lastErr)
	result.CompletedAt = time.Now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Error = lastErr.Error()
	o.state.RecordStage(result)
	return fmt.Errorf("%w: %s", models.ErrStageFailed, lastErr)
}

// validateStageData checks the stage produced its required keys
func validateStageData(name string, data map[string]interface{}) error {
	for _, key := range requiredStageKeys[name] {
		if _, ok := data[key]; !ok {
			return fmt.Errorf("stage %s produced no %q", name, key)
		}
	}
	return nil
}

func (o *Orchestrator) initialize(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.series.Len() < o.cfg.MinSeriesBars {
		return nil, fmt.Errorf("series has %d bars, need at least %d: %w",
			o.series.Len(), o.cfg.MinSeriesBars, models.ErrInsufficientData)
	}
	return map[string]interface{}{
		"run_id":     o.state.RunID.String(),
		"dimensions": o.space.Dimensions(),
		"strategy":   o.strategy.Name(),
	}, nil
}

func (o *Orchestrator) prepareData(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := o.series.FullRange()
	return map[string]interface{}{
		"bars":         o.series.Len(),
		"bars_per_day": o.series.BarsPerDay(),
		"span_days":    full.Len() / maxInt(1, o.series.BarsPerDay()),
	}, nil
}

func (o *Orchestrator) globalConfig() optimize.GlobalConfig {
	cfg := optimize.DefaultGlobalConfig()
	cfg.Samples = o.cfg.Samples
	cfg.Workers = o.cfg.Workers
	if o.cfg.SamplerMethod != "" {
		cfg.Method = o.cfg.SamplerMethod
	}
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageGlobalOpt, 0)
	return cfg
}

func (o *Orchestrator) globalSearch(ctx context.Context) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := o.globalConfig()

	runner, err := optimize.NewRunner(o.strategy, o.evaluator, o.cache, optimize.StageGlobalSearch)
	if err != nil {
		return nil, nil, err
	}
	search, err := optimize.NewGlobalSearch(runner, o.space, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, err := search.Run(ctx, o.series)
	if err != nil {
		return nil, nil, err
	}
	o.trialsSpent += cfg.Samples
	o.recordSurvivors(StageGlobalOpt, out)
	return out, map[string]interface{}{"candidates": len(out)}, nil
}

func (o *Orchestrator) localRefine(ctx context.Context, in []*models.Candidate) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := optimize.DefaultLocalConfig()
	cfg.Trials = o.cfg.Trials
	cfg.FinalPool = o.cfg.MaxCandidates
	cfg.FinalKeep = o.cfg.FinalCandidates
	cfg.Workers = o.cfg.Workers
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageLocalRefine, 0)

	runner, err := optimize.NewRunner(o.strategy, o.evaluator, o.cache, optimize.StageLocalRefinement)
	if err != nil {
		return nil, nil, err
	}
	refine, err := optimize.NewLocalRefinement(runner, o.space, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, err := refine.Run(ctx, o.series.FullRange(), in)
	if err != nil {
		return nil, nil, err
	}
	o.trialsSpent += cfg.Trials
	o.recordSurvivors(StageLocalRefine, out)
	return out, map[string]interface{}{"candidates": len(out)}, nil
}

func (o *Orchestrator) timeseriesConfig() validate.TimeSeriesConfig {
	cfg := validate.DefaultTimeSeriesConfig()
	cfg.Folds = o.cfg.KFolds
	if o.cfg.PurgeFraction > 0 {
		cfg.PurgeFraction = o.cfg.PurgeFraction
	}
	if o.cfg.EmbargoMultiplier > 0 {
		cfg.EmbargoMultiple = o.cfg.EmbargoMultiplier
	}
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageTimeSeriesVal, 0)
	return cfg
}

func (o *Orchestrator) timeseriesValidate(ctx context.Context, in []*models.Candidate, result *Result) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := o.timeseriesConfig()

	v, err := validate.NewTimeSeriesValidator(o.strategy, o.evaluator, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, reports, err := v.Run(ctx, o.series, in)
	if err != nil {
		return nil, nil, err
	}
	result.CrossVal = reports
	o.trialsSpent += len(in) * cfg.Folds
	o.recordSurvivors(StageTimeSeriesVal, out)
	return out, map[string]interface{}{"candidates": len(out)}, nil
}

func (o *Orchestrator) walkForward(ctx context.Context, in []*models.Candidate, result *Result) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := validate.DefaultWalkForwardConfig()
	cfg.Slices = o.cfg.WFOSlices
	if o.cfg.WFOTrainDays > 0 {
		cfg.TrainDays = o.cfg.WFOTrainDays
	}
	if o.cfg.WFOTestDays > 0 {
		cfg.TestDays = o.cfg.WFOTestDays
	}
	cfg.RefineTrials = o.cfg.Trials / 2
	cfg.Workers = o.cfg.Workers
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageWalkForwardVal, 0)

	runner, err := optimize.NewRunner(o.strategy, o.evaluator, o.cache, validate.StageWalkForward)
	if err != nil {
		return nil, nil, err
	}
	w, err := validate.NewWalkForwardAnalyzer(runner, o.space, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, reports, err := w.Run(ctx, o.series, in)
	if err != nil {
		return nil, nil, err
	}
	result.WalkForward = reports

	gatePassed := false
	for _, r := range reports {
		if r.GatePassed {
			gatePassed = true
		} else if o.plog != nil {
			o.plog.LogGateRejection(o.state.RunID.String(), r.CandidateID, StageWalkForwardVal, r.GateFailures)
		}
	}
	o.trialsSpent += len(in) * cfg.Slices * cfg.RefineTrials
	o.recordSurvivors(StageWalkForwardVal, out)
	return out, map[string]interface{}{"candidates": len(out), "gate_passed": gatePassed}, nil
}

func (o *Orchestrator) monteCarloConfig() validate.MonteCarloConfig {
	cfg := validate.DefaultMonteCarloConfig()
	cfg.Simulations = o.cfg.MCSimulations
	cfg.Workers = o.cfg.Workers
	cfg.BlockBootstrap = o.cfg.MCBlockBootstrap
	cfg.TradeResample = o.cfg.MCTradeResample
	cfg.ExecutionNoise = o.cfg.MCExecutionNoise
	cfg.ParamPerturb = o.cfg.MCParamPerturb
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageMonteCarloSim, 0)
	return cfg
}

func (o *Orchestrator) monteCarlo(ctx context.Context, in []*models.Candidate, result *Result) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := o.monteCarloConfig()

	sim, err := validate.NewMonteCarloSimulator(o.strategy, o.evaluator, o.space, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, reports, err := sim.Run(ctx, o.series, in)
	if err != nil {
		return nil, nil, err
	}
	result.MonteCarlo = reports
	o.recordSurvivors(StageMonteCarloSim, out)
	return out, map[string]interface{}{"candidates": len(out)}, nil
}

func (o *Orchestrator) statisticalConfig() validate.StatisticalConfig {
	cfg := validate.DefaultStatisticalConfig()
	if o.cfg.BootstrapResamples > 0 {
		cfg.Resamples = o.cfg.BootstrapResamples
	}
	if o.cfg.SignificanceLevel > 0 {
		cfg.Alpha = o.cfg.SignificanceLevel
	}
	cfg.Seed = params.DeriveSeed(o.cfg.Seed, StageStatisticalVal, 0)
	return cfg
}

func (o *Orchestrator) statisticalValidate(ctx context.Context, in []*models.Candidate, result *Result) ([]*models.Candidate, map[string]interface{}, error) {
	cfg := o.statisticalConfig()

	v, err := validate.NewStatisticalValidator(o.strategy, cfg, o.logger)
	if err != nil {
		return nil, nil, err
	}
	out, report, err := v.Validate(ctx, o.series, in, maxInt(2, o.trialsSpent))
	if err != nil {
		return nil, nil, err
	}
	result.Statistical = report
	result.Degraded = report.Degraded
	o.state.Degraded = report.Degraded
	o.recordSurvivors(StageStatisticalVal, out)
	return out, map[string]interface{}{"candidates": len(out), "degraded": report.Degraded}, nil
}

// positionSizing emits the handoff record for the downstream sizing
// system. Sizing itself happens outside this pipeline.
func (o *Orchestrator) positionSizing(in []*models.Candidate) (map[string]interface{}, error) {
	handoff := make([]map[string]interface{}, 0, len(in))
	for _, cand := range in {
		if !cand.Recommended {
			continue
		}
		handoff = append(handoff, map[string]interface{}{
			"candidate_id":   cand.ID.String(),
			"params":         cand.Params,
			"robustness":     cand.Robustness,
			"combined_score": cand.CombinedScore,
			"max_drawdown":   cand.Metrics.MaxDrawdown,
		})
	}
	return map[string]interface{}{"handoff": handoff}, nil
}

func (o *Orchestrator) finalize(in []*models.Candidate, result *Result) (map[string]interface{}, error) {
	recommended := []*models.Candidate{}
	best := 0.0
	for _, cand := range in {
		if cand.Recommended {
			recommended = append(recommended, cand)
			if o.plog != nil {
				o.plog.LogCandidatePromotion(o.state.RunID.String(), cand.ID.String(), StageFinalization, cand.CombinedScore, cand.Robustness)
			}
		}
		if cand.CombinedScore > best {
			best = cand.CombinedScore
		}
	}
	result.Recommended = recommended
	metrics.BestCandidateScore.Set(best)
	return map[string]interface{}{
		"recommended": len(recommended),
		"candidates":  len(in),
		"degraded":    o.state.Degraded,
	}, nil
}

func (o *Orchestrator) recordSurvivors(stage string, out []*models.Candidate) {
	metrics.SurvivingCandidates.WithLabelValues(stage).Set(float64(len(out)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
