package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/pkg/database"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

func setupRepo(t *testing.T) (*ReindexRunRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewReindexRunRepository(mock), mock
}

func sampleRun() *domain.ReindexRun {
	return &domain.ReindexRun{
		ID:        uuid.MustParse("0f8b4a52-8d1e-4c3f-9a77-1b2c3d4e5f60"),
		Fresh:     true,
		Status:    domain.ReindexRunning,
		StartedAt: time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC),
	}
}

func runColumns() []string {
	return []string{"id", "fresh", "status", "indexed", "started_at", "finished_at", "error"}
}

func TestReindexRunRepository_Create(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectExec("INSERT INTO search_reindex_runs").
		WithArgs(run.ID, true, "running", 0, run.StartedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_Create_Error(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectExec("INSERT INTO search_reindex_runs").
		WithArgs(run.ID, true, "running", 0, run.StartedAt).
		WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert reindex run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_Finish(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	run := sampleRun()
	finished := run.StartedAt.Add(2 * time.Minute)
	run.Status = domain.ReindexCompleted
	run.Indexed = 1234
	run.FinishedAt = &finished

	mock.ExpectExec("UPDATE search_reindex_runs").
		WithArgs(run.ID, "completed", 1234, &finished, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Finish(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_Finish_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	run := sampleRun()
	mock.ExpectExec("UPDATE search_reindex_runs").
		WithArgs(run.ID, "running", 0, run.FinishedAt, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Finish(context.Background(), run)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_GetByID(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	run := sampleRun()
	finished := run.StartedAt.Add(time.Minute)
	mock.ExpectQuery("FROM search_reindex_runs").
		WithArgs(run.ID).
		WillReturnRows(pgxmock.NewRows(runColumns()).
			AddRow(run.ID, true, "failed", 400, run.StartedAt, &finished, "bulk request failed"))

	got, err := repo.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, domain.ReindexFailed, got.Status)
	assert.Equal(t, 400, got.Indexed)
	assert.Equal(t, "bulk request failed", got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM search_reindex_runs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReindexRunRepository_ListRecent(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	a, b := uuid.New(), uuid.New()
	started := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(runColumns()).
			AddRow(a, false, "running", 200, started.Add(time.Hour), (*time.Time)(nil), "").
			AddRow(b, true, "completed", 900, started, &started, ""))

	runs, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, a, runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, domain.ReindexCompleted, runs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
