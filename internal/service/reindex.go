package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/repository"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

// finishTimeout bounds the write of a run's terminal state.
const finishTimeout = 10 * time.Second

// ReindexRunner runs reindex sweeps in the background, one at a time, and
// records each in the run log.
type ReindexRunner struct {
	indexer *Indexer
	runs    repository.ReindexRunRepository
	logger  *slog.Logger

	mu      sync.Mutex
	current *domain.ReindexRun
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReindexRunner creates a runner.
func NewReindexRunner(indexer *Indexer, runs repository.ReindexRunRepository, logger *slog.Logger) *ReindexRunner {
	return &ReindexRunner{indexer: indexer, runs: runs, logger: logger}
}

// Start records a new run and launches it. The sweep outlives ctx; it stops
// only through Shutdown. A second Start while a run is active is a conflict.
func (r *ReindexRunner) Start(ctx context.Context, fresh bool) (*domain.ReindexRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return nil, apperrors.Conflict(fmt.Sprintf("reindex %s is already running", r.current.ID))
	}

	run := &domain.ReindexRun{
		ID:        uuid.New(),
		Fresh:     fresh,
		Status:    domain.ReindexRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("start reindex: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.current = run
	r.cancel = cancel

	snapshot := *run
	r.wg.Add(1)
	go r.execute(runCtx, run)
	return &snapshot, nil
}

func (r *ReindexRunner) execute(ctx context.Context, run *domain.ReindexRun) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "reindex run started", slog.String("run_id", run.ID.String()), slog.Bool("fresh", run.Fresh))
	indexed, err := r.indexer.ReindexAll(ctx, run.Fresh)

	finished := time.Now().UTC()
	final := *run
	final.Indexed = indexed
	final.FinishedAt = &finished
	switch {
	case err == nil:
		final.Status = domain.ReindexCompleted
	case errors.Is(err, context.Canceled):
		final.Status = domain.ReindexCancelled
		final.Error = err.Error()
	default:
		final.Status = domain.ReindexFailed
		final.Error = err.Error()
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if ferr := r.runs.Finish(finishCtx, &final); ferr != nil {
		r.logger.ErrorContext(ctx, "failed to record reindex result",
			slog.String("run_id", run.ID.String()),
			slog.String("error", ferr.Error()),
		)
	}

	r.logger.InfoContext(ctx, "reindex run finished",
		slog.String("run_id", run.ID.String()),
		slog.String("status", string(final.Status)),
		slog.Int("indexed", indexed),
	)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.current = nil
	r.cancel = nil
	r.mu.Unlock()
}

// Get returns a run from the log.
func (r *ReindexRunner) Get(ctx context.Context, id uuid.UUID) (*domain.ReindexRun, error) {
	run, err := r.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// DefaultRecentRuns is the number of runs Overview returns when limit is not positive.
const DefaultRecentRuns = 20

// Overview returns the active run and the latest limit runs from the log.
func (r *ReindexRunner) Overview(ctx context.Context, limit int) (*domain.ReindexOverview, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	recent, err := r.runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []domain.ReindexRun{}
	}

	overview := &domain.ReindexOverview{Recent: recent}
	if active, ok := r.Running(); ok {
		overview.Active = &active
	}
	return overview, nil
}

// Running reports the active run, if any.
func (r *ReindexRunner) Running() (domain.ReindexRun, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.ReindexRun{}, false
	}
	return *r.current, true
}

// Shutdown cancels the active run and waits for it to record its result.
func (r *ReindexRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
