// Package engine defines the narrow capability interface the search service
// needs from an index backend.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/schema"
)

// Sentinel errors reported by every implementation.
var (
	ErrIndexExists      = errors.New("index already exists")
	ErrIndexNotFound    = errors.New("index not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// Engine stores and queries listing documents in a single named index.
type Engine interface {
	// CreateIndex creates the index. Returns ErrIndexExists if it is already there.
	CreateIndex(ctx context.Context, def *schema.Definition) error

	// DeleteIndex drops the index. Returns ErrIndexNotFound if it is absent.
	DeleteIndex(ctx context.Context) error

	// Upsert writes one document, replacing any previous version with the same ID.
	Upsert(ctx context.Context, doc *domain.SearchDocument) error

	// BulkUpsert writes many documents in one round trip. The returned slice
	// lists only the documents that failed; err is reserved for whole-request failures.
	BulkUpsert(ctx context.Context, docs []domain.SearchDocument) ([]BulkFailure, error)

	// Delete removes a document. Returns ErrDocumentNotFound if it is absent.
	Delete(ctx context.Context, id string) error

	// Query runs a search with optional aggregations.
	Query(ctx context.Context, q *Query) (*Response, error)

	// Count returns the number of documents in the index.
	Count(ctx context.Context) (int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Refresher is implemented by engines whose writes become searchable only
// after a refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// BulkFailure describes one document rejected by a bulk request.
type BulkFailure struct {
	ID     string
	Reason string
}

// Hit is one matching document.
type Hit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// Response is the result of Query. Aggregations are keyed by aggregation
// name and use the Elasticsearch response shape.
type Response struct {
	Hits         []Hit
	Total        int64
	Aggregations map[string]json.RawMessage
	TookMs       int64
}
