package domain

import (
	"sort"
	"time"
)

// ListingStatus is the lifecycle state of a listing in the relational store.
type ListingStatus string

const (
	StatusDraft         ListingStatus = "draft"
	StatusPendingReview ListingStatus = "pending_review"
	StatusActive        ListingStatus = "active"
	StatusSold          ListingStatus = "sold"
	StatusRejected      ListingStatus = "rejected"
	StatusArchived      ListingStatus = "archived"
)

// Listing is the listing row as stored by the listing service.
type Listing struct {
	ID            string
	Title         string
	Slug          string
	Description   string
	Status        ListingStatus
	Price         *float64
	Currency      string
	Year          *int
	MileageKm     *int64
	PowerHP       *int
	Condition     string
	FuelType      string
	Transmission  string
	EmissionClass string
	CountryCode   string
	City          string
	Latitude      *float64
	Longitude     *float64
	IsFeatured    bool
	ViewCount     int64
	FavoriteCount int64
	PublishedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// LocalizedText maps a locale code to a translation.
type LocalizedText map[string]string

// Pick returns the translation for locale, falling back to English and then
// to the alphabetically first locale present.
func (t LocalizedText) Pick(locale string) string {
	if v := t[locale]; v != "" {
		return v
	}
	if v := t["en"]; v != "" {
		return v
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// Category of a listing.
type Category struct {
	ID   string
	Name LocalizedText
	Slug string
}

// Brand of a vehicle.
type Brand struct {
	ID   string
	Name string
	Slug string
}

// Model of a vehicle within a brand.
type Model struct {
	ID   string
	Name string
	Slug string
}

// Seller owning a listing.
type Seller struct {
	ID          string
	DisplayName string
	CompanyName string
	Verified    bool
}

// Image attached to a listing. Lower Position sorts first.
type Image struct {
	ID           string
	URL          string
	ThumbnailURL string
	MediumURL    string
	Position     int
}

// ListingAggregate is a listing with its relations joined. Missing relations are nil.
type ListingAggregate struct {
	Listing  Listing
	Category *Category
	Brand    *Brand
	Model    *Model
	Seller   *Seller
	Images   []Image
}

// Indexable reports whether the listing belongs in the search index.
func (a *ListingAggregate) Indexable() bool {
	return a != nil && a.Listing.Status == StatusActive && a.Listing.DeletedAt == nil
}

// PrimaryImage returns the lowest-position image, or nil when there are none.
func (a *ListingAggregate) PrimaryImage() *Image {
	var primary *Image
	for i := range a.Images {
		if primary == nil || a.Images[i].Position < primary.Position {
			primary = &a.Images[i]
		}
	}
	return primary
}
