// Package projector turns listing aggregates into search documents.
package projector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/pkg/validator"
)

// ErrInvalidDocument is returned when a projected document fails validation.
var ErrInvalidDocument = errors.New("invalid search document")

// Projector builds SearchDocuments. It holds no state besides the locale used
// for localized category names, so one value can be shared freely.
type Projector struct {
	Locale string
}

// New creates a projector for locale.
func New(locale string) *Projector {
	return &Projector{Locale: locale}
}

// Project flattens agg into a document and validates it.
func (p *Projector) Project(agg *domain.ListingAggregate) (*domain.SearchDocument, error) {
	if agg == nil {
		return nil, fmt.Errorf("%w: nil aggregate", ErrInvalidDocument)
	}
	l := agg.Listing

	doc := &domain.SearchDocument{
		ID:            l.ID,
		SchemaVersion: domain.SchemaVersion,
		Title:         strings.TrimSpace(l.Title),
		Slug:          l.Slug,
		Description:   l.Description,
		Condition:     l.Condition,
		FuelType:      l.FuelType,
		Transmission:  l.Transmission,
		EmissionClass: l.EmissionClass,
		CountryCode:   strings.ToUpper(l.CountryCode),
		City:          l.City,
		Status:        l.Status,
		IsFeatured:    l.IsFeatured,
		Currency:      strings.ToUpper(l.Currency),
		Year:          l.Year,
		MileageKm:     l.MileageKm,
		PowerHP:       l.PowerHP,
		ViewCount:     l.ViewCount,
		FavoriteCount: l.FavoriteCount,
		PublishedAt:   l.PublishedAt,
		CreatedAt:     l.CreatedAt,
	}
	if l.Price != nil {
		doc.Price = *l.Price
	}
	if l.Latitude != nil && l.Longitude != nil {
		doc.Location = &domain.GeoPoint{Lat: *l.Latitude, Lon: *l.Longitude}
	}

	if c := agg.Category; c != nil {
		doc.CategoryID = c.ID
		doc.CategoryName = c.Name.Pick(p.Locale)
		doc.CategorySlug = c.Slug
	}
	if b := agg.Brand; b != nil {
		doc.BrandID = b.ID
		doc.BrandName = b.Name
		doc.BrandSlug = b.Slug
	}
	if m := agg.Model; m != nil {
		doc.ModelID = m.ID
		doc.ModelName = m.Name
		doc.ModelSlug = m.Slug
	}
	if s := agg.Seller; s != nil {
		doc.SellerID = s.ID
		doc.SellerName = s.DisplayName
		doc.SellerCompanyName = s.CompanyName
		doc.SellerVerified = s.Verified
	}
	if img := agg.PrimaryImage(); img != nil {
		doc.ThumbnailURL = img.ThumbnailURL
		doc.MediumURL = img.MediumURL
	}

	if err := validator.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrInvalidDocument, l.ID, err)
	}
	return doc, nil
}
