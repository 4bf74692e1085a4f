package domain

// Sort options accepted by Search.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortDateAsc   = "date_asc"
	SortDateDesc  = "date_desc"
	SortYearAsc   = "year_asc"
	SortYearDesc  = "year_desc"
)

// ValidSortOptions lists every accepted sort option.
func ValidSortOptions() []string {
	return []string{SortRelevance, SortPriceAsc, SortPriceDesc, SortDateAsc, SortDateDesc, SortYearAsc, SortYearDesc}
}

// IsValidSort reports whether sort is accepted. Empty means relevance.
func IsValidSort(sort string) bool {
	if sort == "" {
		return true
	}
	for _, s := range ValidSortOptions() {
		if s == sort {
			return true
		}
	}
	return false
}

// SearchParams is a structured search request. Nil or empty filters are ignored.
type SearchParams struct {
	Query string `json:"q"`

	CategorySlug  string `json:"category,omitempty"`
	BrandSlug     string `json:"brand,omitempty"`
	ModelSlug     string `json:"model,omitempty"`
	Condition     string `json:"condition,omitempty"`
	FuelType      string `json:"fuel_type,omitempty"`
	Transmission  string `json:"transmission,omitempty"`
	EmissionClass string `json:"emission_class,omitempty"`
	CountryCode   string `json:"country,omitempty"`
	City          string `json:"city,omitempty"`
	Featured      *bool  `json:"featured,omitempty"`

	PriceMin   *float64 `json:"price_min,omitempty"`
	PriceMax   *float64 `json:"price_max,omitempty"`
	YearMin    *int     `json:"year_min,omitempty"`
	YearMax    *int     `json:"year_max,omitempty"`
	MileageMin *int64   `json:"mileage_min,omitempty"`
	MileageMax *int64   `json:"mileage_max,omitempty"`

	Sort     string `json:"sort,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// SearchHit is one ranked document.
type SearchHit struct {
	Document SearchDocument `json:"document"`
	Score    float64        `json:"score"`
}

// SearchResult is a page of hits plus facets over the whole filtered set.
type SearchResult struct {
	Hits     []SearchHit `json:"hits"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Facets   *Facets     `json:"facets,omitempty"`
	TookMs   int64       `json:"took_ms"`
}

// FacetBucket counts documents sharing a keyword value.
type FacetBucket struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int64  `json:"count"`
}

// RangeBucket counts documents whose value falls in [From, To).
type RangeBucket struct {
	Key   string   `json:"key"`
	From  *float64 `json:"from,omitempty"`
	To    *float64 `json:"to,omitempty"`
	Count int64    `json:"count"`
}

// Facets groups the aggregation buckets returned with a search.
type Facets struct {
	Categories  []FacetBucket `json:"categories"`
	Brands      []FacetBucket `json:"brands"`
	Conditions  []FacetBucket `json:"conditions"`
	FuelTypes   []FacetBucket `json:"fuel_types"`
	Countries   []FacetBucket `json:"countries"`
	PriceRanges []RangeBucket `json:"price_ranges"`
	YearRanges  []RangeBucket `json:"year_ranges"`
}
