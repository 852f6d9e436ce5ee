// Package store persists the run log: one row per scrape run plus one per
// target outcome. Records themselves go to the exporters; the store keeps
// the operational history the `runs` command and the HTTP API serve.
package store

import (
	"context"

	"github.com/sells-group/adscope-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the persistence interface for the run log.
type Store interface {
	CreateRun(ctx context.Context, targets int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, records int, failedTargets []string, diag *model.Diagnostics) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// RecordTargetResult stores one target's outcome. Records are not
	// persisted here, only counts, status, and diagnostics.
	RecordTargetResult(ctx context.Context, runID string, result model.TargetResult) error
	ListTargetResults(ctx context.Context, runID string) ([]model.TargetResult, error)

	Migrate(ctx context.Context) error
	Close() error
}
