// Package config provides configuration management for the strategy optimizer.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the configuration (${VAR} syntax)
	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix("STRATOPT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with default values for optional
// fields. A missing config file is not an error; defaults and environment
// variables still apply.
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("STRATOPT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "strategy-optimizer")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("data.interval", "1h")
	v.SetDefault("data.requests_per_sec", 5.0)
	v.SetDefault("data.retry_attempts", 3)
	v.SetDefault("optimization.samples", 120)
	v.SetDefault("optimization.trials", 40)
	v.SetDefault("optimization.max_candidates", 12)
	v.SetDefault("optimization.final_candidates", 5)
	v.SetDefault("optimization.workers", 4)
	v.SetDefault("optimization.sampler_method", "sobol")
	v.SetDefault("validation.k_folds", 5)
	v.SetDefault("validation.walk_forward_slices", 8)
	v.SetDefault("validation.walk_forward_train_days", 270)
	v.SetDefault("validation.walk_forward_test_days", 60)
	v.SetDefault("validation.monte_carlo_sims", 1500)
	v.SetDefault("validation.bootstrap_resamples", 1000)
	v.SetDefault("validation.significance_level", 0.05)
	v.SetDefault("validation.purge_fraction", 0.01)
	v.SetDefault("validation.embargo_multiplier", 2.0)
	v.SetDefault("validation.mc_block_bootstrap", true)
	v.SetDefault("validation.mc_trade_resample", true)
	v.SetDefault("validation.mc_execution_noise", true)
	v.SetDefault("validation.mc_param_perturb", true)
	v.SetDefault("pipeline.stage_timeout_minutes", 30)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_delay_seconds", 5)
	v.SetDefault("schedule.cron_spec", "0 0 * * 0")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBuffer([]byte(expanded))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// ReloadFromEnv reloads the configuration from the path named by
// STRATOPT_CONFIG_PATH, when set
func ReloadFromEnv(cfg *Config) error {
	if envPath := os.Getenv("STRATOPT_CONFIG_PATH"); envPath != "" {
		newCfg, err := Load(envPath)
		if err != nil {
			return err
		}
		*cfg = *newCfg
	}
	return nil
}
