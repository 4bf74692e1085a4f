// Package postgres implements the search service repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/repository"
	"github.com/utafrali/listing-search/pkg/database"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

// ReindexRunRepository implements repository.ReindexRunRepository.
type ReindexRunRepository struct {
	db database.DBTX
}

var _ repository.ReindexRunRepository = (*ReindexRunRepository)(nil)

// NewReindexRunRepository creates a PostgreSQL-backed run log.
func NewReindexRunRepository(db database.DBTX) *ReindexRunRepository {
	return &ReindexRunRepository{db: db}
}

// Create inserts a new run.
func (r *ReindexRunRepository) Create(ctx context.Context, run *domain.ReindexRun) error {
	query := `
		INSERT INTO search_reindex_runs (id, fresh, status, indexed, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, run.ID, run.Fresh, string(run.Status), run.Indexed, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert reindex run: %w", err)
	}
	return nil
}

// Finish updates the terminal fields of a run.
func (r *ReindexRunRepository) Finish(ctx context.Context, run *domain.ReindexRun) error {
	query := `
		UPDATE search_reindex_runs
		SET status = $2, indexed = $3, finished_at = $4, error = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, run.ID, string(run.Status), run.Indexed, run.FinishedAt, run.Error)
	if err != nil {
		return fmt.Errorf("update reindex run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("reindex run", run.ID.String())
	}
	return nil
}

// GetByID returns one run.
func (r *ReindexRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReindexRun, error) {
	query := `
		SELECT id, fresh, status, indexed, started_at, finished_at, error
		FROM search_reindex_runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reindex run", id.String())
		}
		return nil, fmt.Errorf("get reindex run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs ordered by start time descending.
func (r *ReindexRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.ReindexRun, error) {
	query := `
		SELECT id, fresh, status, indexed, started_at, finished_at, error
		FROM search_reindex_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reindex runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ReindexRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reindex run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*domain.ReindexRun, error) {
	var (
		run    domain.ReindexRun
		status string
	)
	if err := row.Scan(&run.ID, &run.Fresh, &status, &run.Indexed, &run.StartedAt, &run.FinishedAt, &run.Error); err != nil {
		return nil, err
	}
	run.Status = domain.ReindexStatus(status)
	return &run, nil
}
