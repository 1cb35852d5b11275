package store

import (
	"context"

	"github.com/me/cpusched/pkg/model"
)

// Store defines the persistence layer for simulation runs.
type Store interface {
	// Run CRUD
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error
	DeleteRun(ctx context.Context, id string) error

	// Timeline
	ListSegments(ctx context.Context, runID string) ([]model.Segment, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
