// Package repository defines persistence owned by the search service.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/utafrali/listing-search/internal/domain"
)

// ReindexRunRepository records reindex sweeps.
type ReindexRunRepository interface {
	// Create inserts a run in its initial state.
	Create(ctx context.Context, run *domain.ReindexRun) error

	// Finish stores the terminal status, count, finish time and error of a run.
	Finish(ctx context.Context, run *domain.ReindexRun) error

	// GetByID returns a run. A missing run yields apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ReindexRun, error)

	// ListRecent returns the latest runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.ReindexRun, error)
}
