package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/strategy-optimizer/internal/models"
)

// StageStatus is the lifecycle of one pipeline stage
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
	StatusCancelled StageStatus = "cancelled"
	StatusRetrying  StageStatus = "retrying"
)

// StageResult records one stage execution
type StageResult struct {
	Stage       string                 `json:"stage"`
	Status      StageStatus            `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	RetryCount  int                    `json:"retry_count"`
}

// State is the resumable run record. Every stage transition is
// appended here and snapshotted to disk when a state path is set.
type State struct {
	RunID      uuid.UUID               `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
	Stages     []StageResult           `json:"stages"`
	Candidates []*models.Candidate `json:"candidates,omitempty"`
	Degraded   bool                `json:"degraded"`

	mu   sync.Mutex
	path string
}

// NewState starts a fresh run record
func NewState(path string) *State {
	return &State{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		path:      path,
	}
}

// RecordStage appends or replaces the result for a stage
func (s *State) RecordStage(result StageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Stages {
		if s.Stages[i].Stage == result.Stage {
			s.Stages[i] = result
			s.UpdatedAt = time.Now().UTC()
			return
		}
	}
	s.Stages = append(s.Stages, result)
	s.UpdatedAt = time.Now().UTC()
}

// StageResult returns the recorded result for a stage, if any
func (s *State) StageResult(stage string) (StageResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Stages {
		if r.Stage == stage {
			return r, true
		}
	}
	return StageResult{}, false
}

// StateSnapshot is a point-in-time copy of the run record, safe to
// serialize without holding the state lock.
type StateSnapshot struct {
	RunID      uuid.UUID           `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Stages     []StageResult       `json:"stages"`
	Candidates []*models.Candidate `json:"candidates,omitempty"`
	Degraded   bool                `json:"degraded"`
}

// Snapshot returns a copy safe to serialize outside the lock
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		UpdatedAt:  s.UpdatedAt,
		Stages:     append([]StageResult(nil), s.Stages...),
		Candidates: append([]*models.Candidate(nil), s.Candidates...),
		Degraded:   s.Degraded,
	}
}

// SetCandidates stores the current surviving candidate set
func (s *State) SetCandidates(candidates []*models.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Candidates = candidates
	s.UpdatedAt = time.Now().UTC()
}

// Save writes an atomic JSON snapshot. Without a configured path it
// is a no-op so in-memory runs need no filesystem.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state snapshot: %w", err)
	}
	return nil
}

// LoadState reads a snapshot back from disk
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	}
	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state snapshot: %w", err)
	}
	state.path = path
	return state, nil
}
