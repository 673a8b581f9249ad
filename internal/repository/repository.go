package repository

import (
	"errors"

	"github.com/yourusername/strategy-optimizer/internal/database"
)

// Repositories bundles every repository behind one handle
type Repositories struct {
	Run       RunRepository
	Parameter ParameterRepository
}

// NewRepositories creates all repositories backed by the given database
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &Repositories{
		Run:       NewPostgresRunRepository(db),
		Parameter: NewPostgresParameterRepository(db),
	}, nil
}
