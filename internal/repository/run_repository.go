package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/strategy-optimizer/internal/database"
	"github.com/yourusername/strategy-optimizer/internal/models"
)

// PostgresRunRepository implements RunRepository for PostgreSQL
type PostgresRunRepository struct {
	db *database.DB
}

// NewPostgresRunRepository creates a new run repository
func NewPostgresRunRepository(db *database.DB) RunRepository {
	return &PostgresRunRepository{db: db}
}

// Create inserts a new optimization run
func (r *PostgresRunRepository) Create(ctx context.Context, run *models.OptimizationRun) error {
	if run.StrategyName == "" {
		return models.ErrRunNameRequired
	}

	query := `
		INSERT INTO optimization_runs (id, strategy_name, status, degraded, candidate_count, recommended_count, best_score, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.GetPool().Exec(ctx, query,
		run.ID, run.StrategyName, run.Status, run.Degraded,
		run.CandidateCount, run.RecommendedCount, run.BestScore, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create optimization run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OptimizationRun, error) {
	query := `
		SELECT id, strategy_name, status, degraded, candidate_count, recommended_count, best_score, started_at, completed_at, created_at
		FROM optimization_runs WHERE id = $1
	`

	run := &models.OptimizationRun{}
	err := r.db.GetPool().QueryRow(ctx, query, id).Scan(
		&run.ID, &run.StrategyName, &run.Status, &run.Degraded,
		&run.CandidateCount, &run.RecommendedCount, &run.BestScore,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get optimization run: %w", err)
	}
	return run, nil
}

// Complete records the terminal state of a run
func (r *PostgresRunRepository) Complete(ctx context.Context, run *models.OptimizationRun) error {
	query := `
		UPDATE optimization_runs
		SET status = $2, degraded = $3, candidate_count = $4, recommended_count = $5, best_score = $6, completed_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.GetPool().Exec(ctx, query,
		run.ID, run.Status, run.Degraded,
		run.CandidateCount, run.RecommendedCount, run.BestScore,
	)
	if err != nil {
		return fmt.Errorf("failed to complete optimization run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListRecent retrieves the most recent runs
func (r *PostgresRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.OptimizationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, strategy_name, status, degraded, candidate_count, recommended_count, best_score, started_at, completed_at, created_at
		FROM optimization_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.GetPool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query optimization runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.OptimizationRun
	for rows.Next() {
		run := &models.OptimizationRun{}
		err := rows.Scan(
			&run.ID, &run.StrategyName, &run.Status, &run.Degraded,
			&run.CandidateCount, &run.RecommendedCount, &run.BestScore,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan optimization run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
