package database

import (
	"context"
	"fmt"

	"github.com/yourusername/strategy-optimizer/internal/config"
)

// schema creates the tables used to persist optimization runs and the
// parameter sets they produce. CREATE IF NOT EXISTS keeps startup
// idempotent without a separate migration step.
const schema = `
CREATE TABLE IF NOT EXISTS optimization_runs (
	id UUID PRIMARY KEY,
	strategy_name TEXT NOT NULL,
	status TEXT NOT NULL,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	candidate_count INT NOT NULL DEFAULT 0,
	recommended_count INT NOT NULL DEFAULT 0,
	best_score NUMERIC(16, 6),
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS parameter_sets (
	id UUID PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
	params JSONB NOT NULL,
	score NUMERIC(16, 6) NOT NULL,
	cv_score NUMERIC(16, 6),
	oos_score NUMERIC(16, 6),
	robustness NUMERIC(8, 6),
	combined_score NUMERIC(16, 6),
	max_drawdown NUMERIC(8, 6),
	profit_factor NUMERIC(12, 6),
	sortino_ratio NUMERIC(12, 6),
	final_ranking INT,
	recommended BOOLEAN NOT NULL DEFAULT FALSE,
	active BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_parameter_sets_run ON parameter_sets(run_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_parameter_sets_active
	ON parameter_sets(active) WHERE active;
`

// Initialize creates a database connection pool and ensures the schema
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if _, err := db.pool.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return db, nil
}
