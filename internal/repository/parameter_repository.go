package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/strategy-optimizer/internal/database"
	"github.com/yourusername/strategy-optimizer/internal/models"
	"github.com/yourusername/strategy-optimizer/internal/params"
)

// PostgresParameterRepository implements ParameterRepository for PostgreSQL
type PostgresParameterRepository struct {
	db *database.DB
}

// NewPostgresParameterRepository creates a new parameter repository
func NewPostgresParameterRepository(db *database.DB) ParameterRepository {
	return &PostgresParameterRepository{db: db}
}

// CreateBatch inserts validated parameter sets in one transaction
func (r *PostgresParameterRepository) CreateBatch(ctx context.Context, records []*models.ParameterRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO parameter_sets (id, run_id, params, score, cv_score, oos_score, robustness, combined_score, max_drawdown, profit_factor, sortino_ratio, final_ranking, recommended, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, rec := range records {
			paramsJSON, err := json.Marshal(rec.Params)
			if err != nil {
				return fmt.Errorf("failed to marshal params for %s: %w", rec.ID, err)
			}
			_, err = tx.Exec(ctx, query,
				rec.ID, rec.RunID, paramsJSON,
				rec.Score, rec.CVScore, rec.OOSScore, rec.Robustness, rec.CombinedScore,
				rec.MaxDrawdown, rec.ProfitFactor, rec.SortinoRatio,
				rec.FinalRanking, rec.Recommended, rec.Active,
			)
			if err != nil {
				return fmt.Errorf("failed to insert parameter set %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

const parameterColumns = `
	id, run_id, params, score, cv_score, oos_score, robustness, combined_score, max_drawdown, profit_factor, sortino_ratio, final_ranking, recommended, active, created_at
`

func scanParameterRecord(row pgx.Row) (*models.ParameterRecord, error) {
	rec := &models.ParameterRecord{}
	var paramsJSON []byte
	err := row.Scan(
		&rec.ID, &rec.RunID, &paramsJSON,
		&rec.Score, &rec.CVScore, &rec.OOSScore, &rec.Robustness, &rec.CombinedScore,
		&rec.MaxDrawdown, &rec.ProfitFactor, &rec.SortinoRatio,
		&rec.FinalRanking, &rec.Recommended, &rec.Active, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Params = make(params.Set)
	if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params for %s: %w", rec.ID, err)
	}
	return rec, nil
}

// GetByRunID retrieves the parameter sets produced by a run
func (r *PostgresParameterRepository) GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.ParameterRecord, error) {
	query := `SELECT ` + parameterColumns + ` FROM parameter_sets WHERE run_id = $1 ORDER BY final_ranking ASC`

	rows, err := r.db.GetPool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parameter sets: %w", err)
	}
	defer rows.Close()

	var records []*models.ParameterRecord
	for rows.Next() {
		rec, err := scanParameterRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parameter set: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetActive retrieves the parameter set currently in use
func (r *PostgresParameterRepository) GetActive(ctx context.Context) (*models.ParameterRecord, error) {
	query := `SELECT ` + parameterColumns + ` FROM parameter_sets WHERE active LIMIT 1`

	rec, err := scanParameterRecord(r.db.GetPool().QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active parameter set: %w", err)
	}
	return rec, nil
}

// Activate marks one parameter set active and deactivates the rest.
// The partial unique index on active enforces at most one.
func (r *PostgresParameterRepository) Activate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE parameter_sets SET active = FALSE WHERE active`); err != nil {
			return fmt.Errorf("failed to deactivate parameter sets: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE parameter_sets SET active = TRUE WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to activate parameter set: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}
