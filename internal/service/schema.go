package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/schema"
)

// SchemaManager creates and drops the listing index.
type SchemaManager struct {
	engine engine.Engine
	def    *schema.Definition
	logger *slog.Logger
}

// NewSchemaManager builds the index definition from opts.
func NewSchemaManager(eng engine.Engine, opts schema.Options, logger *slog.Logger) *SchemaManager {
	return &SchemaManager{
		engine: eng,
		def:    schema.Build(opts),
		logger: logger,
	}
}

// Definition returns the index definition used by EnsureIndex.
func (m *SchemaManager) Definition() *schema.Definition {
	return m.def
}

// EnsureIndex creates the index unless it already exists.
func (m *SchemaManager) EnsureIndex(ctx context.Context) error {
	err := m.engine.CreateIndex(ctx, m.def)
	if errors.Is(err, engine.ErrIndexExists) {
		m.logger.InfoContext(ctx, "search index already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	m.logger.InfoContext(ctx, "search index created")
	return nil
}

// DropIndex deletes the index if present.
func (m *SchemaManager) DropIndex(ctx context.Context) error {
	err := m.engine.DeleteIndex(ctx)
	if errors.Is(err, engine.ErrIndexNotFound) {
		m.logger.InfoContext(ctx, "search index not found, nothing to drop")
		return nil
	}
	if err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	m.logger.InfoContext(ctx, "search index dropped")
	return nil
}

// Stats reports whether the index exists and how many documents it holds.
func (m *SchemaManager) Stats(ctx context.Context) (*domain.IndexStats, error) {
	stats := &domain.IndexStats{SchemaVersion: domain.SchemaVersion}
	n, err := m.engine.Count(ctx)
	if errors.Is(err, engine.ErrIndexNotFound) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	stats.Exists = true
	stats.Documents = n
	return stats, nil
}
