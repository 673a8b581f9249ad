package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/strategy-optimizer/internal/config"
	"github.com/yourusername/strategy-optimizer/internal/database"
	"github.com/yourusername/strategy-optimizer/internal/dataset"
	"github.com/yourusername/strategy-optimizer/internal/health"
	"github.com/yourusername/strategy-optimizer/internal/logger"
	"github.com/yourusername/strategy-optimizer/internal/metrics"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
	"github.com/yourusername/strategy-optimizer/internal/pipeline"
	"github.com/yourusername/strategy-optimizer/internal/repository"
	"github.com/yourusername/strategy-optimizer/internal/scheduler"
	"github.com/yourusername/strategy-optimizer/internal/strategy"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	skipDB     bool
	appLogger  *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	runCmd.Flags().BoolVar(&skipDB, "skip-db", false, "Run without persisting results to the database")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "optimizer",
	Short: "Optimize and validate trading strategy parameters",
	Long:  `Runs the staged parameter optimization pipeline: global search, local refinement, cross-validation, walk-forward analysis, Monte Carlo simulation and statistical validation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := config.ReloadFromEnv(cfg); err != nil {
			return fmt.Errorf("failed to reload configuration from environment: %w", err)
		}

		// Load AWS secrets if enabled
		if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
			region := os.Getenv("AWS_REGION")
			secretName := os.Getenv("AWS_SECRET_NAME")
			if region == "" || secretName == "" {
				return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
			}
			if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
				return fmt.Errorf("failed to load secrets: %w", err)
			}
		}

		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		appLogger = logger.NewLogger(cfg.App.LogLevel)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute an optimization run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimizer()
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the active parameter set and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showParams()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("optimizer %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runOptimizer() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		appLogger.WithField("signal", sig.String()).Info("shutdown signal received")
		cancel()
	}()

	series, err := loadSeries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bar series: %w", err)
	}
	appLogger.WithFields(logrus.Fields{
		"bars":     series.Len(),
		"interval": series.Interval().String(),
	}).Info("bar series loaded")

	space, err := buildSpace()
	if err != nil {
		return fmt.Errorf("failed to build parameter space: %w", err)
	}

	var repos *repository.Repositories
	var db *database.DB
	if !skipDB {
		db, err = database.Initialize(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		repos, err = repository.NewRepositories(db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}
	}

	orch, err := pipeline.New(pipelineConfig(), strategy.NewSynthetic(space), space, series, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	orch.OnProgress(func(stage string, fraction float64, message string) {
		appLogger.WithFields(logrus.Fields{
			"stage":    stage,
			"progress": fmt.Sprintf("%.0f%%", fraction*100),
		}).Info(message)
	})

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		srv := health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Commit:      GitCommit,
			Port:        strconv.Itoa(cfg.Metrics.Port),
			Logger:      appLogger,
			DB:          db,
			Metrics:     metrics.Handler(),
			MetricsPath: cfg.Metrics.Path,
			Status: func() interface{} {
				return orch.State().Snapshot()
			},
		})
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		srv.SetReady(true)
	}

	runOnce := func(ctx context.Context) error {
		return executeRun(ctx, orch, repos)
	}

	if cfg.Schedule.Enabled {
		sched, err := scheduler.NewScheduler(runOnce, appLogger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.ScheduleOptimization(cfg.Schedule.CronSpec); err != nil {
			return fmt.Errorf("failed to schedule optimization: %w", err)
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		appLogger.WithField("next_run", sched.GetNextRun().Format(time.RFC3339)).Info("scheduler running")

		<-ctx.Done()
		return sched.Stop()
	}

	return runOnce(ctx)
}

// executeRun drives one pipeline run and persists the outcome
func executeRun(ctx context.Context, orch *pipeline.Orchestrator, repos *repository.Repositories) error {
	runID := orch.State().RunID
	run := models.NewOptimizationRun(runID, "synthetic")

	if repos != nil {
		if err := repos.Run.Create(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	result, runErr := orch.Run(ctx)
	if runErr != nil {
		if repos != nil {
			run.Status = models.RunStatusFailed
			if ctx.Err() != nil {
				run.Status = models.RunStatusCancelled
			}
			if err := repos.Run.Complete(ctx, run); err != nil {
				appLogger.WithError(err).Warn("failed to record run failure")
			}
		}
		return fmt.Errorf("pipeline run failed: %w", runErr)
	}

	appLogger.WithFields(logrus.Fields{
		"run_id":      result.RunID,
		"candidates":  len(result.Candidates),
		"recommended": len(result.Recommended),
		"degraded":    result.Degraded,
		"duration":    result.Duration.String(),
	}).Info("optimization run completed")

	for _, c := range result.Recommended {
		appLogger.WithFields(logrus.Fields{
			"candidate_id":   c.ID,
			"final_ranking":  c.FinalRanking,
			"combined_score": fmt.Sprintf("%.4f", c.CombinedScore),
			"params":         c.Params,
		}).Info("recommended parameter set")
	}

	if repos == nil {
		return nil
	}
	return persistResult(ctx, repos, run, result)
}

func persistResult(ctx context.Context, repos *repository.Repositories, run *models.OptimizationRun, result *pipeline.Result) error {
	records := make([]*models.ParameterRecord, 0, len(result.Candidates))
	bestScore := 0.0
	for _, c := range result.Candidates {
		records = append(records, models.ParameterRecordFromCandidate(run.ID, c))
		if c.CombinedScore > bestScore {
			bestScore = c.CombinedScore
		}
	}
	if err := repos.Parameter.CreateBatch(ctx, records); err != nil {
		return fmt.Errorf("failed to persist parameter sets: %w", err)
	}

	run.Status = models.RunStatusCompleted
	run.Degraded = result.Degraded
	run.CandidateCount = len(result.Candidates)
	run.RecommendedCount = len(result.Recommended)
	run.BestScore = decimal.NewFromFloat(bestScore)
	if err := repos.Run.Complete(ctx, run); err != nil {
		return fmt.Errorf("failed to complete run record: %w", err)
	}

	// A non-degraded run's top recommendation becomes the active set.
	if !result.Degraded && len(result.Recommended) > 0 {
		if err := repos.Parameter.Activate(ctx, result.Recommended[0].ID); err != nil {
			return fmt.Errorf("failed to activate parameter set: %w", err)
		}
		appLogger.WithField("candidate_id", result.Recommended[0].ID).Info("activated parameter set")
	}
	return nil
}

func showParams() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	active, err := repos.Parameter.GetActive(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		fmt.Println("No active parameter set.")
	case err != nil:
		return fmt.Errorf("failed to load active parameter set: %w", err)
	default:
		fmt.Printf("Active parameter set %s (run %s)\n", active.ID, active.RunID)
		for name, value := range active.Params {
			fmt.Printf("  %-20s %.4f\n", name, value)
		}
		fmt.Printf("  combined score %s, robustness %s\n", active.CombinedScore, active.Robustness)
	}

	runs, err := repos.Run.ListRecent(ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to list recent runs: %w", err)
	}
	fmt.Printf("\nRecent runs (%d):\n", len(runs))
	for _, r := range runs {
		fmt.Printf("  %s  %-10s candidates=%d recommended=%d degraded=%v started=%s\n",
			r.ID, r.Status, r.CandidateCount, r.RecommendedCount, r.Degraded,
			r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// loadSeries reads candles from the configured file, falling back to the
// HTTP candle API for the trailing two years.
func loadSeries(ctx context.Context) (*dataset.Series, error) {
	interval, err := cfg.DataInterval()
	if err != nil {
		return nil, err
	}

	if cfg.Data.FilePath != "" {
		return dataset.LoadFile(cfg.Data.FilePath, interval)
	}

	srcCfg := dataset.DefaultHTTPSourceConfig()
	srcCfg.BaseURL = cfg.Data.APIURL
	srcCfg.Symbol = cfg.Data.Symbol
	srcCfg.Interval = interval
	srcCfg.APIKey = cfg.Data.APIKey
	if cfg.Data.RequestsPerSec > 0 {
		srcCfg.RateLimit = cfg.Data.RequestsPerSec
	}
	if cfg.Data.RetryAttempts > 0 {
		srcCfg.MaxRetries = cfg.Data.RetryAttempts
	}
	if cfg.Data.TimeoutSeconds > 0 {
		srcCfg.Timeout = time.Duration(cfg.Data.TimeoutSeconds) * time.Second
	}

	src, err := dataset.NewHTTPSource(srcCfg, appLogger)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.AddDate(-2, 0, 0)
	return src.Fetch(ctx, start, end)
}

// buildSpace defines the tunable parameters of the demo strategy
func buildSpace() (*params.Space, error) {
	return params.NewSpace(
		params.Definition{Name: "entry_period", Kind: params.KindInt, Min: 5, Max: 60},
		params.Definition{Name: "exit_period", Kind: params.KindInt, Min: 5, Max: 40},
		params.Definition{Name: "atr_multiplier", Kind: params.KindFloat, Min: 0.5, Max: 5.0},
		params.Definition{Name: "risk_fraction", Kind: params.KindFloat, Min: 0.005, Max: 0.05, LogScale: true},
	)
}

func pipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.Optimization.Samples > 0 {
		pc.Samples = cfg.Optimization.Samples
	}
	if cfg.Optimization.Trials > 0 {
		pc.Trials = cfg.Optimization.Trials
	}
	if cfg.Optimization.MaxCandidates > 0 {
		pc.MaxCandidates = cfg.Optimization.MaxCandidates
	}
	if cfg.Optimization.FinalCandidates > 0 {
		pc.FinalCandidates = cfg.Optimization.FinalCandidates
	}
	if cfg.Optimization.Workers > 0 {
		pc.Workers = cfg.Optimization.Workers
	}
	if cfg.Validation.KFolds > 0 {
		pc.KFolds = cfg.Validation.KFolds
	}
	if cfg.Validation.WalkForwardSlices > 0 {
		pc.WFOSlices = cfg.Validation.WalkForwardSlices
	}
	if cfg.Validation.WalkForwardTrainDays > 0 {
		pc.WFOTrainDays = cfg.Validation.WalkForwardTrainDays
	}
	if cfg.Validation.WalkForwardTestDays > 0 {
		pc.WFOTestDays = cfg.Validation.WalkForwardTestDays
	}
	if cfg.Validation.MonteCarloSims > 0 {
		pc.MCSimulations = cfg.Validation.MonteCarloSims
	}
	if cfg.Data.MinHistoryBars > 0 {
		pc.MinSeriesBars = cfg.Data.MinHistoryBars
	}
	if cfg.Optimization.SamplerMethod != "" {
		pc.SamplerMethod = params.SamplerMethod(cfg.Optimization.SamplerMethod)
	}
	if cfg.Validation.PurgeFraction > 0 {
		pc.PurgeFraction = cfg.Validation.PurgeFraction
	}
	if cfg.Validation.EmbargoMultiplier > 0 {
		pc.EmbargoMultiplier = cfg.Validation.EmbargoMultiplier
	}
	if cfg.Validation.BootstrapResamples > 0 {
		pc.BootstrapResamples = cfg.Validation.BootstrapResamples
	}
	if cfg.Validation.SignificanceLevel > 0 {
		pc.SignificanceLevel = cfg.Validation.SignificanceLevel
	}
	pc.MCBlockBootstrap = cfg.Validation.MCBlockBootstrap
	pc.MCTradeResample = cfg.Validation.MCTradeResample
	pc.MCExecutionNoise = cfg.Validation.MCExecutionNoise
	pc.MCParamPerturb = cfg.Validation.MCParamPerturb
	pc.MaxRetries = cfg.Pipeline.MaxRetries
	pc.RetryDelay = time.Duration(cfg.Pipeline.RetryDelaySeconds) * time.Second
	pc.StageTimeout = cfg.StageTimeout()
	pc.CacheTTL = cfg.CacheTTL()
	pc.StatePath = cfg.Pipeline.StatePath
	pc.Seed = cfg.Optimization.Seed
	return pc
}
