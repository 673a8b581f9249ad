// Package config provides configuration management for the strategy optimizer.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Data         DataConfig         `mapstructure:"data" validate:"required"`
	Optimization OptimizationConfig `mapstructure:"optimization" validate:"required"`
	Validation   ValidationConfig   `mapstructure:"validation" validate:"required"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline" validate:"required"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Metrics      MetricsConfig      `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// DataConfig represents candle data sourcing configuration
type DataConfig struct {
	FilePath        string `mapstructure:"file_path"`
	APIURL          string `mapstructure:"api_url" validate:"omitempty,url"`
	APIKey          string `mapstructure:"api_key"`
	Symbol          string `mapstructure:"symbol"`
	Interval        string `mapstructure:"interval" validate:"required,interval"`
	RequestsPerSec  float64 `mapstructure:"requests_per_sec" validate:"omitempty,gt=0"`
	RetryAttempts   int    `mapstructure:"retry_attempts" validate:"gte=0"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" validate:"omitempty,gt=0"`
	MinHistoryBars  int    `mapstructure:"min_history_bars" validate:"omitempty,gt=0"`
}

// OptimizationConfig represents the search budgets
type OptimizationConfig struct {
	Samples         int     `mapstructure:"samples" validate:"required,gt=0"`
	Trials          int     `mapstructure:"trials" validate:"required,gt=0"`
	MaxCandidates   int     `mapstructure:"max_candidates" validate:"required,gt=0"`
	FinalCandidates int     `mapstructure:"final_candidates" validate:"required,gt=0"`
	Workers         int     `mapstructure:"workers" validate:"required,gt=0"`
	Seed            int64   `mapstructure:"seed"`
	CacheTTLMinutes int     `mapstructure:"cache_ttl_minutes" validate:"omitempty,gt=0"`
	SamplerMethod   string  `mapstructure:"sampler_method" validate:"omitempty,oneof=sobol lhs"`
}

// ValidationConfig represents the statistical validation settings
type ValidationConfig struct {
	KFolds               int     `mapstructure:"k_folds" validate:"required,min=2"`
	WalkForwardSlices    int     `mapstructure:"walk_forward_slices" validate:"required,min=2"`
	WalkForwardTrainDays int     `mapstructure:"walk_forward_train_days" validate:"required,gt=0"`
	WalkForwardTestDays  int     `mapstructure:"walk_forward_test_days" validate:"required,gt=0"`
	MonteCarloSims       int     `mapstructure:"monte_carlo_sims" validate:"required,gt=0"`
	BootstrapResamples   int     `mapstructure:"bootstrap_resamples" validate:"omitempty,gt=0"`
	SignificanceLevel    float64 `mapstructure:"significance_level" validate:"omitempty,gt=0,lt=1"`
	PurgeFraction        float64 `mapstructure:"purge_fraction" validate:"omitempty,gt=0,lt=0.5"`
	EmbargoMultiplier    float64 `mapstructure:"embargo_multiplier" validate:"omitempty,gt=0"`
	MCBlockBootstrap     bool    `mapstructure:"mc_block_bootstrap"`
	MCTradeResample      bool    `mapstructure:"mc_trade_resample"`
	MCExecutionNoise     bool    `mapstructure:"mc_execution_noise"`
	MCParamPerturb       bool    `mapstructure:"mc_param_perturb"`
}

// PipelineConfig represents run orchestration settings
type PipelineConfig struct {
	StageTimeoutMinutes int    `mapstructure:"stage_timeout_minutes" validate:"required,gt=0"`
	MaxRetries          int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds   int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	StatePath           string `mapstructure:"state_path"`
}

// ScheduleConfig represents the recurring run schedule
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// CacheTTL returns the evaluation cache TTL as a duration
func (c *Config) CacheTTL() time.Duration {
	if c.Optimization.CacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Optimization.CacheTTLMinutes) * time.Minute
}

// StageTimeout returns the per-stage timeout as a duration
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutMinutes) * time.Minute
}

// DataInterval parses the configured candle interval
func (c *Config) DataInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Data.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid data interval %q: %w", c.Data.Interval, err)
	}
	return d, nil
}
