// Package query translates search and suggest requests into engine queries.
package query

import (
	"fmt"
	"strings"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
	"github.com/utafrali/listing-search/pkg/pagination"
)

// SearchFields are the boosted fields scored by free-text search.
var SearchFields = []string{
	"title^4",
	"title.autocomplete^2",
	"brand_name^3",
	"model_name^3",
	"description",
	"category_name",
	"seller_company_name",
}

// AutocompleteField is matched by prefix suggestions.
const AutocompleteField = "title.autocomplete"

// Suggestion limits.
const (
	DefaultSuggestions = 10
	MaxSuggestions     = 50
)

// Search builds the engine query for p. Pagination is normalized and returned
// so callers can echo it back. aggs are attached unchanged.
func Search(p domain.SearchParams, aggs []engine.Aggregation) (*engine.Query, pagination.Params, error) {
	if !domain.IsValidSort(p.Sort) {
		return nil, pagination.Params{}, apperrors.InvalidInput(
			fmt.Sprintf("invalid sort %q, must be one of: %s", p.Sort, strings.Join(domain.ValidSortOptions(), ", ")))
	}

	filters, err := buildFilters(p)
	if err != nil {
		return nil, pagination.Params{}, err
	}

	page := pagination.New(p.Page, p.PageSize)
	q := &engine.Query{
		Filters:      filters,
		Sort:         sortFields(p.Sort),
		From:         page.Offset(),
		Size:         page.PerPage,
		Aggregations: aggs,
	}
	if text := strings.TrimSpace(p.Query); text != "" {
		q.Text = &engine.TextQuery{Query: text, Fields: SearchFields, Fuzziness: "AUTO"}
	}
	return q, page, nil
}

func buildFilters(p domain.SearchParams) ([]engine.Filter, error) {
	out := []engine.Filter{engine.Term("status", string(domain.StatusActive))}

	terms := []struct {
		field string
		value string
	}{
		{"category_slug", p.CategorySlug},
		{"brand_slug", p.BrandSlug},
		{"model_slug", p.ModelSlug},
		{"condition", p.Condition},
		{"fuel_type", p.FuelType},
		{"transmission", p.Transmission},
		{"emission_class", p.EmissionClass},
		{"country_code", strings.ToUpper(p.CountryCode)},
		{"city", p.City},
	}
	for _, t := range terms {
		if t.value != "" {
			out = append(out, engine.Term(t.field, t.value))
		}
	}
	if p.Featured != nil {
		out = append(out, engine.Term("is_featured", *p.Featured))
	}

	price, err := between("price", p.PriceMin, p.PriceMax)
	if err != nil {
		return nil, err
	}
	year, err := between("year", toFloat(p.YearMin), toFloat(p.YearMax))
	if err != nil {
		return nil, err
	}
	mileage, err := between("mileage_km", toFloat(p.MileageMin), toFloat(p.MileageMax))
	if err != nil {
		return nil, err
	}
	for _, f := range []*engine.Filter{price, year, mileage} {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func between(field string, lo, hi *float64) (*engine.Filter, error) {
	if lo == nil && hi == nil {
		return nil, nil
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nil, apperrors.InvalidInput(fmt.Sprintf("%s minimum must not exceed maximum", field))
	}
	f := engine.Between(field, lo, hi)
	return &f, nil
}

func toFloat[T int | int64](v *T) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func sortFields(sort string) []engine.SortField {
	score := engine.Desc(engine.ScoreField)
	switch sort {
	case domain.SortPriceAsc:
		return []engine.SortField{engine.Asc("price"), score}
	case domain.SortPriceDesc:
		return []engine.SortField{engine.Desc("price"), score}
	case domain.SortDateAsc:
		return []engine.SortField{engine.Asc("published_at"), score}
	case domain.SortDateDesc:
		return []engine.SortField{engine.Desc("published_at"), score}
	case domain.SortYearAsc:
		return []engine.SortField{engine.Asc("year"), score}
	case domain.SortYearDesc:
		return []engine.SortField{engine.Desc("year"), score}
	default:
		return []engine.SortField{engine.Desc("is_featured"), score, engine.Desc("published_at")}
	}
}

// SuggestLimit normalizes a requested suggestion count.
func SuggestLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSuggestions
	case limit > MaxSuggestions:
		return MaxSuggestions
	}
	return limit
}

// Suggest builds the prefix query for autocomplete. It fetches limit×overfetch
// titles so duplicates can be dropped without coming up short.
func Suggest(prefix string, limit, overfetch int) *engine.Query {
	if overfetch < 1 {
		overfetch = 1
	}
	return &engine.Query{
		Text:    &engine.TextQuery{Query: prefix, Fields: []string{AutocompleteField}},
		Filters: []engine.Filter{engine.Term("status", string(domain.StatusActive))},
		Sort:    []engine.SortField{engine.Desc(engine.ScoreField), engine.Desc("is_featured")},
		Size:    limit * overfetch,
		Source:  []string{"title"},
	}
}
