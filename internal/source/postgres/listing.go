// Package postgres implements source.ListingSource on the listing database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/source"
	"github.com/utafrali/listing-search/pkg/database"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

const aggregateSelect = `
	SELECT l.id::text, l.title, COALESCE(l.slug, ''), COALESCE(l.description, ''), l.status,
		   l.price::float8, COALESCE(l.currency, ''), l.year, l.mileage_km, l.power_hp,
		   COALESCE(l.condition, ''), COALESCE(l.fuel_type, ''), COALESCE(l.transmission, ''),
		   COALESCE(l.emission_class, ''), COALESCE(l.country_code, ''), COALESCE(l.city, ''),
		   l.latitude::float8, l.longitude::float8, l.is_featured, l.view_count, l.favorite_count,
		   l.published_at, l.created_at, l.updated_at, l.deleted_at,
		   c.id::text, COALESCE(c.name, '{}'::jsonb), COALESCE(c.slug, ''),
		   b.id::text, COALESCE(b.name, ''), COALESCE(b.slug, ''),
		   m.id::text, COALESCE(m.name, ''), COALESCE(m.slug, ''),
		   s.id::text, COALESCE(s.display_name, ''), COALESCE(s.company_name, ''), COALESCE(s.is_verified, false)
	FROM listings l
	LEFT JOIN categories c ON c.id = l.category_id
	LEFT JOIN brands b ON b.id = l.brand_id
	LEFT JOIN vehicle_models m ON m.id = l.model_id
	LEFT JOIN sellers s ON s.id = l.seller_id`

const imagesSelect = `
	SELECT listing_id::text, id::text, COALESCE(url, ''), COALESCE(thumbnail_url, ''),
		   COALESCE(medium_url, ''), position
	FROM listing_images
	WHERE listing_id = ANY($1::uuid[])
	ORDER BY listing_id, position`

// ListingSource reads listing aggregates with their relations joined.
type ListingSource struct {
	db     database.DBTX
	tracer database.QueryTracer
}

var _ source.ListingSource = (*ListingSource)(nil)

// NewListingSource creates a source over db.
func NewListingSource(db database.DBTX, tracer database.QueryTracer) *ListingSource {
	return &ListingSource{db: db, tracer: tracer}
}

// GetAggregate loads a listing and its relations by id.
func (s *ListingSource) GetAggregate(ctx context.Context, id string) (agg *domain.ListingAggregate, err error) {
	query := aggregateSelect + `
	WHERE l.id = $1`

	ctx, end := s.tracer.Start(ctx, "GetAggregate", query)
	defer func() { end(err) }()

	agg, err = scanAggregate(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("listing", id)
		}
		return nil, fmt.Errorf("get listing aggregate %s: %w", id, err)
	}

	if err := s.attachImages(ctx, []*domain.ListingAggregate{agg}); err != nil {
		return nil, err
	}
	return agg, nil
}

// ListIndexable pages through active listings.
func (s *ListingSource) ListIndexable(ctx context.Context, offset, limit int) (aggs []*domain.ListingAggregate, err error) {
	query := aggregateSelect + `
	WHERE l.status = 'active' AND l.deleted_at IS NULL
	ORDER BY l.created_at, l.id
	OFFSET $1 LIMIT $2`

	ctx, end := s.tracer.Start(ctx, "ListIndexable", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list indexable listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing aggregates: %w", err)
	}

	if err := s.attachImages(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

// attachImages loads the images of every aggregate in one query.
func (s *ListingSource) attachImages(ctx context.Context, aggs []*domain.ListingAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.ListingAggregate, len(aggs))
	ids := make([]string, 0, len(aggs))
	for _, a := range aggs {
		byID[a.Listing.ID] = a
		ids = append(ids, a.Listing.ID)
	}

	rows, err := s.db.Query(ctx, imagesSelect, ids)
	if err != nil {
		return fmt.Errorf("list listing images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var listingID string
		var img domain.Image
		if err := rows.Scan(&listingID, &img.ID, &img.URL, &img.ThumbnailURL, &img.MediumURL, &img.Position); err != nil {
			return fmt.Errorf("scan listing image: %w", err)
		}
		if a, ok := byID[listingID]; ok {
			a.Images = append(a.Images, img)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate listing images: %w", err)
	}
	return nil
}

func scanAggregate(row pgx.Row) (*domain.ListingAggregate, error) {
	var (
		l            domain.Listing
		status       string
		categoryID   *string
		categoryName []byte
		categorySlug string
		brandID      *string
		brand        domain.Brand
		modelID      *string
		model        domain.Model
		sellerID     *string
		seller       domain.Seller
	)
	err := row.Scan(
		&l.ID, &l.Title, &l.Slug, &l.Description, &status,
		&l.Price, &l.Currency, &l.Year, &l.MileageKm, &l.PowerHP,
		&l.Condition, &l.FuelType, &l.Transmission,
		&l.EmissionClass, &l.CountryCode, &l.City,
		&l.Latitude, &l.Longitude, &l.IsFeatured, &l.ViewCount, &l.FavoriteCount,
		&l.PublishedAt, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt,
		&categoryID, &categoryName, &categorySlug,
		&brandID, &brand.Name, &brand.Slug,
		&modelID, &model.Name, &model.Slug,
		&sellerID, &seller.DisplayName, &seller.CompanyName, &seller.Verified,
	)
	if err != nil {
		return nil, err
	}
	l.Status = domain.ListingStatus(status)

	agg := &domain.ListingAggregate{Listing: l}
	if categoryID != nil {
		c := &domain.Category{ID: *categoryID, Slug: categorySlug}
		if len(categoryName) > 0 {
			if err := json.Unmarshal(categoryName, &c.Name); err != nil {
				return nil, fmt.Errorf("decode category name: %w", err)
			}
		}
		agg.Category = c
	}
	if brandID != nil {
		brand.ID = *brandID
		agg.Brand = &brand
	}
	if modelID != nil {
		model.ID = *modelID
		agg.Model = &model
	}
	if sellerID != nil {
		seller.ID = *sellerID
		agg.Seller = &seller
	}
	return agg, nil
}
