package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourusername/strategy-optimizer/internal/models"
)

// RunRepository defines the interface for optimization run persistence
type RunRepository interface {
	Create(ctx context.Context, run *models.OptimizationRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.OptimizationRun, error)
	Complete(ctx context.Context, run *models.OptimizationRun) error
	ListRecent(ctx context.Context, limit int) ([]*models.OptimizationRun, error)
}

// ParameterRepository defines the interface for validated parameter sets
type ParameterRepository interface {
	CreateBatch(ctx context.Context, records []*models.ParameterRecord) error
	GetByRunID(ctx context.Context, runID uuid.UUID) ([]*models.ParameterRecord, error)
	GetActive(ctx context.Context) (*models.ParameterRecord, error)
	Activate(ctx context.Context, id uuid.UUID) error
}
