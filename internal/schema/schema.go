// Package schema builds the index settings and field mappings for listing documents.
package schema

import "encoding/json"

// Analyzer names referenced by the mappings.
const (
	AnalyzerText               = "listing_text"
	AnalyzerTextSearch         = "listing_text_search"
	AnalyzerAutocompleteIndex  = "autocomplete_index"
	AnalyzerAutocompleteSearch = "autocomplete_search"
)

// Options parameterizes the index definition.
type Options struct {
	Shards   int
	Replicas int
	// Synonyms holds comma separated equivalence groups, e.g. "truck, lorry, hgv".
	Synonyms []string
	MinGram  int
	MaxGram  int
}

// DefaultOptions returns a single-shard definition with the built-in truck synonyms.
func DefaultOptions() Options {
	return Options{
		Shards:   1,
		Replicas: 0,
		Synonyms: []string{
			"truck, lorry, hgv",
			"tractor unit, tractor, cab",
			"refrigerated, reefer",
		},
		MinGram: 2,
		MaxGram: 15,
	}
}

// Definition is the body of a create-index request.
type Definition struct {
	Settings map[string]any `json:"settings"`
	Mappings map[string]any `json:"mappings"`
}

// JSON encodes the definition.
func (d *Definition) JSON() ([]byte, error) {
	return json.Marshal(d)
}

// TemplatePriority ranks the listing template above catch-all templates.
const TemplatePriority = 200

// TemplateJSON encodes the definition as a composable index template matching
// exactly indexName, so an index auto-created by a write still gets the
// analyzers and mappings.
func (d *Definition) TemplateJSON(indexName string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"index_patterns": []string{indexName},
		"priority":       TemplatePriority,
		"template":       d,
	})
}

// Build returns the index definition for opts. It is deterministic.
func Build(opts Options) *Definition {
	return &Definition{
		Settings: settings(opts),
		Mappings: map[string]any{
			"dynamic":    "strict",
			"properties": properties(),
		},
	}
}

// settings applies synonyms at search time only; synonym_graph is a
// search-time filter.
func settings(opts Options) map[string]any {
	searchFilters := []string{"lowercase", "asciifolding"}
	filters := map[string]any{}
	if len(opts.Synonyms) > 0 {
		filters["listing_synonyms"] = map[string]any{
			"type":     "synonym_graph",
			"synonyms": opts.Synonyms,
			"lenient":  true,
		}
		searchFilters = append(searchFilters, "listing_synonyms")
	}

	analysis := map[string]any{
		"analyzer": map[string]any{
			AnalyzerText: map[string]any{
				"type":      "custom",
				"tokenizer": "standard",
				"filter":    []string{"lowercase", "asciifolding"},
			},
			AnalyzerTextSearch: map[string]any{
				"type":      "custom",
				"tokenizer": "standard",
				"filter":    searchFilters,
			},
			AnalyzerAutocompleteIndex: map[string]any{
				"type":      "custom",
				"tokenizer": "autocomplete_tokenizer",
				"filter":    []string{"lowercase", "asciifolding"},
			},
			AnalyzerAutocompleteSearch: map[string]any{
				"type":      "custom",
				"tokenizer": "standard",
				"filter":    []string{"lowercase", "asciifolding"},
			},
		},
		"tokenizer": map[string]any{
			"autocomplete_tokenizer": map[string]any{
				"type":        "edge_ngram",
				"min_gram":    opts.MinGram,
				"max_gram":    opts.MaxGram,
				"token_chars": []string{"letter", "digit"},
			},
		},
		"normalizer": map[string]any{
			"lowercase_keyword": map[string]any{
				"type":   "custom",
				"filter": []string{"lowercase", "asciifolding"},
			},
		},
	}
	if len(filters) > 0 {
		analysis["filter"] = filters
	}

	return map[string]any{
		"number_of_shards":   opts.Shards,
		"number_of_replicas": opts.Replicas,
		"max_ngram_diff":     opts.MaxGram - opts.MinGram,
		"analysis":           analysis,
	}
}

func keyword() map[string]any { return map[string]any{"type": "keyword"} }

func typed(t string) map[string]any { return map[string]any{"type": t} }

func analyzed() map[string]any {
	return map[string]any{
		"type":            "text",
		"analyzer":        AnalyzerText,
		"search_analyzer": AnalyzerTextSearch,
	}
}

// text is an analyzed field with an exact-match keyword sub-field.
func text() map[string]any {
	return map[string]any{
		"type":            "text",
		"analyzer":        AnalyzerText,
		"search_analyzer": AnalyzerTextSearch,
		"fields": map[string]any{
			"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
		},
	}
}

func properties() map[string]any {
	title := text()
	title["fields"].(map[string]any)["autocomplete"] = map[string]any{
		"type":            "text",
		"analyzer":        AnalyzerAutocompleteIndex,
		"search_analyzer": AnalyzerAutocompleteSearch,
	}

	return map[string]any{
		"id":             keyword(),
		"schema_version": typed("integer"),

		"title":               title,
		"slug":                keyword(),
		"description":         analyzed(),
		"category_id":         keyword(),
		"category_name":       text(),
		"category_slug":       keyword(),
		"brand_id":            keyword(),
		"brand_name":          text(),
		"brand_slug":          keyword(),
		"model_id":            keyword(),
		"model_name":          text(),
		"model_slug":          keyword(),
		"seller_id":           keyword(),
		"seller_name":         analyzed(),
		"seller_company_name": text(),
		"seller_verified":     typed("boolean"),

		"condition":      keyword(),
		"fuel_type":      keyword(),
		"transmission":   keyword(),
		"emission_class": keyword(),
		"country_code":   keyword(),
		"city":           map[string]any{"type": "keyword", "normalizer": "lowercase_keyword"},
		"status":         keyword(),
		"is_featured":    typed("boolean"),

		"price":          map[string]any{"type": "scaled_float", "scaling_factor": 100},
		"currency":       keyword(),
		"year":           typed("integer"),
		"mileage_km":     typed("long"),
		"power_hp":       typed("integer"),
		"view_count":     typed("long"),
		"favorite_count": typed("long"),
		"location":       typed("geo_point"),

		"thumbnail_url": map[string]any{"type": "keyword", "index": false},
		"medium_url":    map[string]any{"type": "keyword", "index": false},

		"published_at": typed("date"),
		"created_at":   typed("date"),
	}
}
