// Package config provides configuration management for the strategy optimizer.
package config

import (
	"os"
	"strings"
	"testing"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	expansionConfigPath   = "testdata/expansion_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"
	expectedNoErrorMsg    = "expected no error, got %v"
	expectedNonNilConfig  = "expected non-nil config"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg == nil {
		t.Fatal(expectedNonNilConfig)
	}

	if cfg.App.Name != "strategy-optimizer" {
		t.Errorf("expected app name 'strategy-optimizer', got '%s'", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got '%s'", cfg.App.Environment)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("expected database host 'localhost', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected database port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Optimization.Samples != 120 {
		t.Errorf("expected 120 samples, got %d", cfg.Optimization.Samples)
	}
	if cfg.Validation.MonteCarloSims != 1500 {
		t.Errorf("expected 1500 Monte Carlo simulations, got %d", cfg.Validation.MonteCarloSims)
	}
	if cfg.Schedule.CronSpec != "0 0 * * 0" {
		t.Errorf("expected weekly cron spec, got '%s'", cfg.Schedule.CronSpec)
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	if _, err := Load(nonexistentConfigPath); err == nil {
		t.Fatal("expected error for nonexistent config file")
	}
}

// TestLoadConfigExpandsEnvironment tests ${VAR} expansion in the YAML
func TestLoadConfigExpandsEnvironment(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "expanded_secret_value")
	os.Setenv("TEST_DATA_API_KEY", "expanded_api_key")
	defer os.Unsetenv("TEST_DB_PASSWORD")
	defer os.Unsetenv("TEST_DATA_API_KEY")

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.Database.Password != "expanded_secret_value" {
		t.Errorf("expected expanded database password, got '%s'", cfg.Database.Password)
	}
	if cfg.Data.APIKey != "expanded_api_key" {
		t.Errorf("expected expanded API key, got '%s'", cfg.Data.APIKey)
	}
}

// TestLoadWithDefaultsNoFile tests defaults apply when the file is missing
func TestLoadWithDefaultsNoFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected default environment 'development', got '%s'", cfg.App.Environment)
	}
	if cfg.Optimization.Samples != 120 {
		t.Errorf("expected default 120 samples, got %d", cfg.Optimization.Samples)
	}
	if cfg.Validation.KFolds != 5 {
		t.Errorf("expected default 5 folds, got %d", cfg.Validation.KFolds)
	}
	if cfg.Pipeline.MaxRetries != 3 {
		t.Errorf("expected default 3 retries, got %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

// TestValidateValidConfig tests a complete configuration passes validation
func TestValidateValidConfig(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config to pass validation, got %v", err)
	}
}

// TestValidateRejectsInvalidEnvironment tests the environment rule
func TestValidateRejectsInvalidEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	cfg.App.Environment = "invalid"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
}

// TestValidateRejectsBadBudgets tests cross-field budget constraints
func TestValidateRejectsBadBudgets(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	cfg.Optimization.FinalCandidates = cfg.Optimization.MaxCandidates + 1
	err = Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error when final_candidates exceeds max_candidates")
	}
	if !strings.Contains(err.Error(), "final_candidates") {
		t.Errorf("error %v does not mention final_candidates", err)
	}
}

// TestValidateRejectsBadWalkForwardWindows tests the WFO window rule
func TestValidateRejectsBadWalkForwardWindows(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	cfg.Validation.WalkForwardTestDays = cfg.Validation.WalkForwardTrainDays
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when test days reach train days")
	}
}

// TestValidateRequiresDataSource tests that some data source is configured
func TestValidateRequiresDataSource(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	cfg.Data.FilePath = ""
	cfg.Data.APIURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error when no data source is configured")
	}
}

// TestValidateProductionRequiresSSL tests the production SSL rule
func TestValidateProductionRequiresSSL(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	cfg.App.Environment = "production"
	cfg.Database.SSLMode = "disable"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for production without SSL")
	}
}

// TestSecretsOverlay tests secrets overlay onto the configuration
func TestSecretsOverlay(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	overlaySecretsOnConfig(cfg, &SecretsOverlay{
		DatabasePassword: "from-secrets-manager",
		DataAPIKey:       "overlay-api-key",
	})
	if cfg.Database.Password != "from-secrets-manager" {
		t.Errorf("database password not overlaid, got '%s'", cfg.Database.Password)
	}
	if cfg.Data.APIKey != "overlay-api-key" {
		t.Errorf("data API key not overlaid, got '%s'", cfg.Data.APIKey)
	}

	// Empty secrets must leave existing values alone.
	overlaySecretsOnConfig(cfg, &SecretsOverlay{})
	if cfg.Database.Password != "from-secrets-manager" {
		t.Error("empty overlay must not clear the database password")
	}
}

// TestReloadFromEnv tests the STRATOPT_CONFIG_PATH reload hook
func TestReloadFromEnv(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	original := cfg.App.Name

	// Without the variable the config stays untouched.
	if err := ReloadFromEnv(cfg); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if cfg.App.Name != original {
		t.Errorf("config changed without STRATOPT_CONFIG_PATH, got '%s'", cfg.App.Name)
	}

	t.Setenv("STRATOPT_CONFIG_PATH", expansionConfigPath)
	if err := ReloadFromEnv(cfg); err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}

	t.Setenv("STRATOPT_CONFIG_PATH", nonexistentConfigPath)
	if err := ReloadFromEnv(cfg); err == nil {
		t.Fatal("expected error for missing reload path")
	}
}

// TestGetDatabaseDSN tests DSN formatting
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	dsn := cfg.GetDatabaseDSN()
	if !strings.HasPrefix(dsn, "postgres://") {
		t.Errorf("expected postgres DSN, got '%s'", dsn)
	}
	if !strings.Contains(dsn, "strategy_optimizer") {
		t.Errorf("DSN missing database name: '%s'", dsn)
	}
}

// TestDataInterval tests interval parsing
func TestDataInterval(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	d, err := cfg.DataInterval()
	if err != nil {
		t.Fatalf(expectedNoErrorMsg, err)
	}
	if d.Hours() != 1 {
		t.Errorf("expected 1h interval, got %v", d)
	}

	cfg.Data.Interval = "bogus"
	if _, err := cfg.DataInterval(); err == nil {
		t.Fatal("expected error for invalid interval")
	}
}
