package domain

import "time"

// SchemaVersion is bumped whenever the document layout or index mapping changes.
const SchemaVersion = 3

// GeoPoint is a latitude/longitude pair in Elasticsearch geo_point object form.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// SearchDocument is the flat projection of a listing stored in the index.
// Its ID is the listing primary key.
type SearchDocument struct {
	ID            string `json:"id" validate:"required"`
	SchemaVersion int    `json:"schema_version" validate:"required"`

	Title             string `json:"title" validate:"required"`
	Slug              string `json:"slug"`
	Description       string `json:"description"`
	CategoryID        string `json:"category_id"`
	CategoryName      string `json:"category_name"`
	CategorySlug      string `json:"category_slug"`
	BrandID           string `json:"brand_id"`
	BrandName         string `json:"brand_name"`
	BrandSlug         string `json:"brand_slug"`
	ModelID           string `json:"model_id"`
	ModelName         string `json:"model_name"`
	ModelSlug         string `json:"model_slug"`
	SellerID          string `json:"seller_id"`
	SellerName        string `json:"seller_name"`
	SellerCompanyName string `json:"seller_company_name"`
	SellerVerified    bool   `json:"seller_verified"`

	Condition     string        `json:"condition"`
	FuelType      string        `json:"fuel_type"`
	Transmission  string        `json:"transmission"`
	EmissionClass string        `json:"emission_class"`
	CountryCode   string        `json:"country_code" validate:"omitempty,iso3166_1_alpha2"`
	City          string        `json:"city"`
	Status        ListingStatus `json:"status" validate:"oneof=active"`
	IsFeatured    bool          `json:"is_featured"`

	Price         float64   `json:"price" validate:"gte=0"`
	Currency      string    `json:"currency" validate:"omitempty,iso4217"`
	Year          *int      `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100"`
	MileageKm     *int64    `json:"mileage_km,omitempty" validate:"omitempty,gte=0"`
	PowerHP       *int      `json:"power_hp,omitempty" validate:"omitempty,gte=0"`
	ViewCount     int64     `json:"view_count" validate:"gte=0"`
	FavoriteCount int64     `json:"favorite_count" validate:"gte=0"`
	Location      *GeoPoint `json:"location,omitempty" validate:"omitempty"`

	ThumbnailURL string `json:"thumbnail_url"`
	MediumURL    string `json:"medium_url"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
