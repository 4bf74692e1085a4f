package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/projector"
	"github.com/utafrali/listing-search/internal/source"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

// DefaultBatchSize is the reindex page size.
const DefaultBatchSize = 200

// FailureSink receives documents that could not be indexed.
type FailureSink interface {
	IndexFailed(ctx context.Context, failures []engine.BulkFailure) error
}

// Indexer keeps the index in step with the listing store.
type Indexer struct {
	engine    engine.Engine
	source    source.ListingSource
	projector *projector.Projector
	schema    *SchemaManager
	sink      FailureSink
	batchSize int
	logger    *slog.Logger
}

// NewIndexer creates an indexer. sink may be nil, in which case failures are
// only logged. A non-positive batchSize falls back to DefaultBatchSize.
func NewIndexer(
	eng engine.Engine,
	src source.ListingSource,
	proj *projector.Projector,
	schemaMgr *SchemaManager,
	sink FailureSink,
	batchSize int,
	logger *slog.Logger,
) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{
		engine:    eng,
		source:    src,
		projector: proj,
		schema:    schemaMgr,
		sink:      sink,
		batchSize: batchSize,
		logger:    logger,
	}
}

// IndexOne loads a listing and writes its document, or removes the document
// when the listing is gone or no longer indexable.
func (i *Indexer) IndexOne(ctx context.Context, id string) error {
	agg, err := i.source.GetAggregate(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		i.logger.InfoContext(ctx, "listing not found, removing from index", slog.String("listing_id", id))
		return i.RemoveOne(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("index listing %s: %w", id, err)
	}

	if !agg.Indexable() {
		i.logger.DebugContext(ctx, "listing not indexable, removing from index",
			slog.String("listing_id", id),
			slog.String("status", string(agg.Listing.Status)),
		)
		return i.RemoveOne(ctx, id)
	}

	doc, err := i.projector.Project(agg)
	if err != nil {
		return fmt.Errorf("index listing %s: %w", id, err)
	}
	err = i.withIndex(ctx, func() error { return i.engine.Upsert(ctx, doc) })
	if err != nil {
		return fmt.Errorf("index listing %s: %w", id, err)
	}
	documentsIndexed.WithLabelValues("one").Inc()

	i.logger.InfoContext(ctx, "listing indexed", slog.String("listing_id", id))
	return nil
}

// withIndex runs write, creating the index and retrying once when the
// engine reports it missing.
func (i *Indexer) withIndex(ctx context.Context, write func() error) error {
	err := write()
	if !errors.Is(err, engine.ErrIndexNotFound) || i.schema == nil {
		return err
	}
	i.logger.WarnContext(ctx, "index missing on write, creating it")
	if err := i.schema.EnsureIndex(ctx); err != nil {
		return err
	}
	return write()
}

// RemoveOne deletes a document. A missing document or index is not an error.
func (i *Indexer) RemoveOne(ctx context.Context, id string) error {
	err := i.engine.Delete(ctx, id)
	if errors.Is(err, engine.ErrDocumentNotFound) || errors.Is(err, engine.ErrIndexNotFound) {
		i.logger.DebugContext(ctx, "listing not in index", slog.String("listing_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove listing %s: %w", id, err)
	}
	i.logger.InfoContext(ctx, "listing removed from index", slog.String("listing_id", id))
	return nil
}

// BulkIndex projects aggs and writes them in one request. Non-indexable
// aggregates are skipped. Projection and per-document engine failures are
// counted in the report; only a failed request returns an error.
func (i *Indexer) BulkIndex(ctx context.Context, aggs []*domain.ListingAggregate) (*domain.BulkReport, error) {
	report := &domain.BulkReport{}
	docs := make([]domain.SearchDocument, 0, len(aggs))
	var failures []engine.BulkFailure

	for _, agg := range aggs {
		if !agg.Indexable() {
			report.Skipped++
			continue
		}
		doc, err := i.projector.Project(agg)
		if err != nil {
			failures = append(failures, engine.BulkFailure{ID: agg.Listing.ID, Reason: err.Error()})
			continue
		}
		docs = append(docs, *doc)
	}

	if len(docs) > 0 {
		var rejected []engine.BulkFailure
		err := i.withIndex(ctx, func() (err error) {
			rejected, err = i.engine.BulkUpsert(ctx, docs)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("bulk index: %w", err)
		}
		report.Indexed = len(docs) - len(rejected)
		failures = append(failures, rejected...)
	}

	for _, f := range failures {
		report.AddFailure(f.ID, f.Reason)
	}
	documentsIndexed.WithLabelValues("bulk").Add(float64(report.Indexed))

	if len(failures) > 0 {
		bulkFailures.Add(float64(len(failures)))
		i.logger.WarnContext(ctx, "bulk index had failures",
			slog.Int("failed", report.Failed),
			slog.Any("errors", report.Errors),
		)
		if i.sink != nil {
			if err := i.sink.IndexFailed(ctx, failures); err != nil {
				i.logger.ErrorContext(ctx, "failed to publish index failures", slog.String("error", err.Error()))
			}
		}
	}
	return report, nil
}

// ReindexAll rebuilds the index from the listing store in batches. With fresh
// the index is dropped and recreated first. Cancellation is checked before
// each batch; the count indexed so far is returned alongside the error.
func (i *Indexer) ReindexAll(ctx context.Context, fresh bool) (total int, err error) {
	start := time.Now()
	defer func() {
		status := string(domain.ReindexCompleted)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = string(domain.ReindexCancelled)
		case err != nil:
			status = string(domain.ReindexFailed)
		}
		reindexDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	if fresh {
		if err := i.schema.DropIndex(ctx); err != nil {
			return 0, fmt.Errorf("reindex: %w", err)
		}
	}
	if err := i.schema.EnsureIndex(ctx); err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	i.logger.InfoContext(ctx, "reindex started", slog.Bool("fresh", fresh), slog.Int("batch_size", i.batchSize))

	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			i.logger.WarnContext(ctx, "reindex cancelled", slog.Int("indexed", total))
			return total, err
		}

		batch, err := i.source.ListIndexable(ctx, offset, i.batchSize)
		if err != nil {
			return total, fmt.Errorf("reindex: load batch at offset %d: %w", offset, err)
		}
		if len(batch) > 0 {
			report, err := i.BulkIndex(ctx, batch)
			if err != nil {
				return total, fmt.Errorf("reindex: batch at offset %d: %w", offset, err)
			}
			total += report.Indexed
			i.logger.InfoContext(ctx, "reindex progress",
				slog.Int("offset", offset),
				slog.Int("batch", len(batch)),
				slog.Int("failed", report.Failed),
				slog.Int("indexed", total),
			)
		}
		if len(batch) < i.batchSize {
			break
		}
		offset += len(batch)
	}

	if r, ok := i.engine.(engine.Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			i.logger.WarnContext(ctx, "refresh after reindex failed", slog.String("error", err.Error()))
		}
	}

	i.logger.InfoContext(ctx, "reindex completed",
		slog.Int("indexed", total),
		slog.Duration("duration", time.Since(start)),
	)
	return total, nil
}
