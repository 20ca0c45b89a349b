package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/eisenhauerIO/impact-engine/internal/model"
)

// RunFilter specifies criteria for listing catalog runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Model  string          `json:"model,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run catalog. The catalog
// records pipeline run history and outcomes; artifacts themselves live in
// the storage backend, keyed by the run ID.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, resultsPath string) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountRuns(ctx context.Context, filter RunFilter) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err marks a missing catalog row rather than a
// backend failure. Both drivers report missing rows this way: sqlite and
// the Exec paths with a "not found" message, pgx row scans with a wrapped
// sql.ErrNoRows.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found")
}
