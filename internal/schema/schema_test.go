package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/listing-search/internal/domain"
)

func decodeDefinition(t *testing.T, d *Definition) map[string]any {
	t.Helper()
	raw, err := d.JSON()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuild_Analyzers(t *testing.T) {
	def := decodeDefinition(t, Build(Options{Shards: 2, Replicas: 1, Synonyms: []string{"truck, lorry, hgv"}, MinGram: 2, MaxGram: 15}))

	settings := def["settings"].(map[string]any)
	assert.EqualValues(t, 2, settings["number_of_shards"])
	assert.EqualValues(t, 1, settings["number_of_replicas"])
	assert.EqualValues(t, 13, settings["max_ngram_diff"])

	analysis := settings["analysis"].(map[string]any)
	analyzers := analysis["analyzer"].(map[string]any)
	text := analyzers[AnalyzerText].(map[string]any)
	assert.Equal(t, []any{"lowercase", "asciifolding"}, text["filter"])
	search := analyzers[AnalyzerTextSearch].(map[string]any)
	assert.Equal(t, []any{"lowercase", "asciifolding", "listing_synonyms"}, search["filter"])

	syn := analysis["filter"].(map[string]any)["listing_synonyms"].(map[string]any)
	assert.Equal(t, "synonym_graph", syn["type"])
	assert.Equal(t, []any{"truck, lorry, hgv"}, syn["synonyms"])

	tok := analysis["tokenizer"].(map[string]any)["autocomplete_tokenizer"].(map[string]any)
	assert.Equal(t, "edge_ngram", tok["type"])
	assert.EqualValues(t, 2, tok["min_gram"])
	assert.EqualValues(t, 15, tok["max_gram"])
	assert.Equal(t, []any{"letter", "digit"}, tok["token_chars"])
}

func TestBuild_NoSynonymsOmitsFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.Synonyms = nil
	def := decodeDefinition(t, Build(opts))

	analysis := def["settings"].(map[string]any)["analysis"].(map[string]any)
	_, ok := analysis["filter"]
	assert.False(t, ok)
	search := analysis["analyzer"].(map[string]any)[AnalyzerTextSearch].(map[string]any)
	assert.Equal(t, []any{"lowercase", "asciifolding"}, search["filter"])
}

func TestBuild_FieldTypes(t *testing.T) {
	def := decodeDefinition(t, Build(DefaultOptions()))
	props := def["mappings"].(map[string]any)["properties"].(map[string]any)

	typeOf := func(field string) string {
		return props[field].(map[string]any)["type"].(string)
	}
	assert.Equal(t, "scaled_float", typeOf("price"))
	assert.Equal(t, "integer", typeOf("year"))
	assert.Equal(t, "long", typeOf("mileage_km"))
	assert.Equal(t, "geo_point", typeOf("location"))
	assert.Equal(t, "date", typeOf("published_at"))
	assert.Equal(t, "keyword", typeOf("brand_slug"))

	title := props["title"].(map[string]any)["fields"].(map[string]any)
	ac := title["autocomplete"].(map[string]any)
	assert.Equal(t, AnalyzerAutocompleteIndex, ac["analyzer"])
	assert.Equal(t, AnalyzerAutocompleteSearch, ac["search_analyzer"])

	brand := props["brand_name"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, brand, "keyword")
}

func TestBuild_SynonymsOnlyAtSearchTime(t *testing.T) {
	def := decodeDefinition(t, Build(DefaultOptions()))
	props := def["mappings"].(map[string]any)["properties"].(map[string]any)

	for _, field := range []string{"title", "description", "brand_name", "model_name", "category_name", "seller_company_name"} {
		f := props[field].(map[string]any)
		assert.Equal(t, AnalyzerText, f["analyzer"], field)
		assert.Equal(t, AnalyzerTextSearch, f["search_analyzer"], field)
	}
}

func TestDefinition_TemplateJSON(t *testing.T) {
	raw, err := Build(DefaultOptions()).TemplateJSON("listings")
	require.NoError(t, err)

	var tmpl map[string]any
	require.NoError(t, json.Unmarshal(raw, &tmpl))
	assert.Equal(t, []any{"listings"}, tmpl["index_patterns"])
	assert.EqualValues(t, TemplatePriority, tmpl["priority"])

	body := tmpl["template"].(map[string]any)
	assert.Contains(t, body, "settings")
	assert.Equal(t, "strict", body["mappings"].(map[string]any)["dynamic"])
}

// Strict dynamic mapping rejects unknown fields, so every document field must be mapped.
func TestBuild_MapsEveryDocumentField(t *testing.T) {
	props := Build(DefaultOptions()).Mappings["properties"].(map[string]any)

	typ := reflect.TypeOf(domain.SearchDocument{})
	for i := 0; i < typ.NumField(); i++ {
		name := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		assert.Contains(t, props, name, "field %s is not mapped", name)
	}
	assert.Len(t, props, typ.NumField())
}
