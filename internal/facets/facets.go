// Package facets declares the search facets and decodes their buckets from
// engine aggregation responses.
package facets

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
)

// Aggregation names.
const (
	Categories  = "categories"
	Brands      = "brands"
	Conditions  = "conditions"
	FuelTypes   = "fuel_types"
	Countries   = "countries"
	PriceRanges = "price_ranges"
	YearRanges  = "year_ranges"
)

// DefaultTermsSize is the bucket limit for keyword facets.
const DefaultTermsSize = 50

// Config holds the range boundaries. Boundaries must be ascending.
type Config struct {
	PriceBuckets []float64
	YearBuckets  []float64
	TermsSize    int
}

// Specs returns the aggregations requested with every search.
func Specs(cfg Config) []engine.Aggregation {
	size := cfg.TermsSize
	if size <= 0 {
		size = DefaultTermsSize
	}
	return []engine.Aggregation{
		{Name: Categories, Terms: &engine.TermsAggregation{Field: "category_slug", Size: size, LabelField: "category_name.keyword"}},
		{Name: Brands, Terms: &engine.TermsAggregation{Field: "brand_slug", Size: size, LabelField: "brand_name.keyword"}},
		{Name: Conditions, Terms: &engine.TermsAggregation{Field: "condition", Size: size}},
		{Name: FuelTypes, Terms: &engine.TermsAggregation{Field: "fuel_type", Size: size}},
		{Name: Countries, Terms: &engine.TermsAggregation{Field: "country_code", Size: size}},
		{Name: PriceRanges, Range: &engine.RangeAggregation{Field: "price", Ranges: Ranges(cfg.PriceBuckets)}},
		{Name: YearRanges, Range: &engine.RangeAggregation{Field: "year", Ranges: Ranges(cfg.YearBuckets)}},
	}
}

// Ranges turns ascending boundaries into contiguous buckets. The first bucket
// is open below and keyed from 0, the last is open above and keyed "N+".
func Ranges(bounds []float64) []engine.RangeBucket {
	if len(bounds) == 0 {
		return nil
	}
	out := make([]engine.RangeBucket, 0, len(bounds)+1)
	to := bounds[0]
	out = append(out, engine.RangeBucket{Key: "0-" + format(to), To: &to})
	for i := 1; i < len(bounds); i++ {
		from, to := bounds[i-1], bounds[i]
		out = append(out, engine.RangeBucket{Key: format(from) + "-" + format(to), From: &from, To: &to})
	}
	last := bounds[len(bounds)-1]
	out = append(out, engine.RangeBucket{Key: format(last) + "+", From: &last})
	return out
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type termsResponse struct {
	Buckets []struct {
		Key      json.RawMessage `json:"key"`
		DocCount int64           `json:"doc_count"`
		Label    *struct {
			Buckets []struct {
				Key json.RawMessage `json:"key"`
			} `json:"buckets"`
		} `json:"label"`
	} `json:"buckets"`
}

type rangeResponse struct {
	Buckets []struct {
		Key      string   `json:"key"`
		From     *float64 `json:"from"`
		To       *float64 `json:"to"`
		DocCount int64    `json:"doc_count"`
	} `json:"buckets"`
}

// Extract decodes the facet aggregations of a search response. Facets that
// are absent from aggs come back as empty lists.
func Extract(aggs map[string]json.RawMessage) (*domain.Facets, error) {
	f := &domain.Facets{}
	var err error
	if f.Categories, err = terms(aggs, Categories); err != nil {
		return nil, err
	}
	if f.Brands, err = terms(aggs, Brands); err != nil {
		return nil, err
	}
	if f.Conditions, err = terms(aggs, Conditions); err != nil {
		return nil, err
	}
	if f.FuelTypes, err = terms(aggs, FuelTypes); err != nil {
		return nil, err
	}
	if f.Countries, err = terms(aggs, Countries); err != nil {
		return nil, err
	}
	if f.PriceRanges, err = ranges(aggs, PriceRanges); err != nil {
		return nil, err
	}
	if f.YearRanges, err = ranges(aggs, YearRanges); err != nil {
		return nil, err
	}
	return f, nil
}

func terms(aggs map[string]json.RawMessage, name string) ([]domain.FacetBucket, error) {
	out := []domain.FacetBucket{}
	raw, ok := aggs[name]
	if !ok {
		return out, nil
	}
	var resp termsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode %s aggregation: %w", name, err)
	}
	for _, b := range resp.Buckets {
		bucket := domain.FacetBucket{Key: keyString(b.Key), Count: b.DocCount}
		if b.Label != nil && len(b.Label.Buckets) > 0 {
			bucket.Label = keyString(b.Label.Buckets[0].Key)
		}
		out = append(out, bucket)
	}
	return out, nil
}

func ranges(aggs map[string]json.RawMessage, name string) ([]domain.RangeBucket, error) {
	out := []domain.RangeBucket{}
	raw, ok := aggs[name]
	if !ok {
		return out, nil
	}
	var resp rangeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode %s aggregation: %w", name, err)
	}
	for _, b := range resp.Buckets {
		out = append(out, domain.RangeBucket{Key: b.Key, From: b.From, To: b.To, Count: b.DocCount})
	}
	return out, nil
}

// keyString renders a bucket key. Keyword keys are JSON strings, numeric and
// boolean keys are kept in their literal form.
func keyString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
