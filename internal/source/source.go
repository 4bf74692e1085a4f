// Package source defines the read side of the relational listing store.
package source

import (
	"context"

	"github.com/utafrali/listing-search/internal/domain"
)

// ListingSource loads listing aggregates for indexing.
type ListingSource interface {
	// GetAggregate loads one listing regardless of status. A missing listing
	// yields an error matching apperrors.ErrNotFound.
	GetAggregate(ctx context.Context, id string) (*domain.ListingAggregate, error)

	// ListIndexable returns active, non-deleted listings ordered by
	// created_at, id.
	ListIndexable(ctx context.Context, offset, limit int) ([]*domain.ListingAggregate, error)
}
