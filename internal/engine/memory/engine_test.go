package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/schema"
)

func ptr[T any](v T) *T { return &v }

func doc(id, title, brand string, price float64, year int, featured bool) domain.SearchDocument {
	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(id)) * time.Hour)
	return domain.SearchDocument{
		ID:            id,
		SchemaVersion: domain.SchemaVersion,
		Title:         title,
		BrandName:     brand,
		BrandSlug:     slug(brand),
		Status:        domain.StatusActive,
		Price:         price,
		Year:          ptr(year),
		IsFeatured:    featured,
		CountryCode:   "DE",
		PublishedAt:   &published,
	}
}

func slug(s string) string {
	if s == "" {
		return ""
	}
	return fold(s)
}

func seeded(t *testing.T, docs ...domain.SearchDocument) *Engine {
	t.Helper()
	e := New()
	require.NoError(t, e.CreateIndex(context.Background(), schema.Build(schema.DefaultOptions())))
	failures, err := e.BulkUpsert(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, failures)
	return e
}

func ids(resp *engine.Response) []string {
	out := make([]string, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	e := New()

	_, err := e.Count(ctx)
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
	assert.ErrorIs(t, e.DeleteIndex(ctx), engine.ErrIndexNotFound)

	def := schema.Build(schema.DefaultOptions())
	require.NoError(t, e.CreateIndex(ctx, def))
	assert.ErrorIs(t, e.CreateIndex(ctx, def), engine.ErrIndexExists)
	assert.Same(t, def, e.Definition())

	require.NoError(t, e.Upsert(ctx, ptr(doc("a", "Volvo FH", "Volvo", 1, 2020, false))))
	require.NoError(t, e.DeleteIndex(ctx))
	_, ok := e.Get("a")
	assert.False(t, ok)
}

func TestUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)
	d := doc("a", "Volvo FH 500", "Volvo", 125000, 2020, false)

	require.NoError(t, e.Upsert(ctx, &d))
	require.NoError(t, e.Upsert(ctx, &d))

	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDelete_Missing(t *testing.T) {
	e := seeded(t, doc("a", "Scania R", "Scania", 1, 2019, false))
	assert.ErrorIs(t, e.Delete(context.Background(), "zzz"), engine.ErrDocumentNotFound)
	assert.NoError(t, e.Delete(context.Background(), "a"))
}

func TestBulkUpsert_PartialFailure(t *testing.T) {
	e := seeded(t)
	e.RejectWhen(func(d *domain.SearchDocument) error {
		if d.ID == "bad" {
			return errors.New("mapper_parsing_exception: failed to parse field [price]")
		}
		return nil
	})

	docs := []domain.SearchDocument{doc("ok", "MAN TGX", "MAN", 1, 2018, false), doc("bad", "DAF XF", "DAF", 1, 2018, false)}
	failures, err := e.BulkUpsert(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0].ID)
	assert.Contains(t, failures[0].Reason, "mapper_parsing_exception")

	_, ok := e.Get("ok")
	assert.True(t, ok)
}

func TestQuery_MissingIndex(t *testing.T) {
	_, err := New().Query(context.Background(), &engine.Query{Size: 10})
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestQuery_FuzzyMultiMatch(t *testing.T) {
	e := seeded(t,
		doc("a", "Volvo FH 500 Globetrotter", "Volvo", 80000, 2020, false),
		doc("b", "Scania R450", "Scania", 70000, 2019, false),
	)

	resp, err := e.Query(context.Background(), &engine.Query{
		Text: &engine.TextQuery{Query: "volvoo", Fields: []string{"title^4", "brand_name^3"}, Fuzziness: "AUTO"},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(resp))
	assert.InDelta(t, 4.0, resp.Hits[0].Score, 0.001)
}

func TestQuery_AutocompletePrefix(t *testing.T) {
	e := seeded(t,
		doc("a", "Mercedes-Benz Actros", "Mercedes-Benz", 1, 2021, false),
		doc("b", "MAN TGS", "MAN", 1, 2021, false),
	)

	resp, err := e.Query(context.Background(), &engine.Query{
		Text: &engine.TextQuery{Query: "Act", Fields: []string{"title.autocomplete"}},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(resp))

	resp, err = e.Query(context.Background(), &engine.Query{
		Text: &engine.TextQuery{Query: "a", Fields: []string{"title.autocomplete"}},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits, "single characters are below the minimum gram")
}

func TestQuery_FiltersAndRanges(t *testing.T) {
	e := seeded(t,
		doc("a", "Volvo FH", "Volvo", 40000, 2016, false),
		doc("b", "Volvo FM", "Volvo", 60000, 2019, false),
		doc("c", "Scania S", "Scania", 60000, 2021, false),
	)

	resp, err := e.Query(context.Background(), &engine.Query{
		Filters: []engine.Filter{
			engine.Term("brand_slug", "volvo"),
			engine.Between("price", ptr(50000.0), ptr(60000.0)),
		},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(resp))

	resp, err = e.Query(context.Background(), &engine.Query{
		Filters: []engine.Filter{engine.Between("year", ptr(2019.0), nil)},
		Size:    10,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, ids(resp))
}

func TestQuery_SortFeaturedFirstThenScore(t *testing.T) {
	e := seeded(t,
		doc("a", "Volvo FH", "Volvo", 1, 2020, false),
		doc("b", "Volvo FH", "Volvo", 1, 2020, true),
	)

	resp, err := e.Query(context.Background(), &engine.Query{
		Text: &engine.TextQuery{Query: "volvo", Fields: []string{"title"}, Fuzziness: "AUTO"},
		Sort: []engine.SortField{engine.Desc("is_featured"), engine.Desc(engine.ScoreField), engine.Desc("published_at")},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(resp))
}

func TestQuery_SortMissingLast(t *testing.T) {
	noYear := doc("b", "Trailer", "", 1, 0, false)
	noYear.Year = nil
	e := seeded(t, doc("a", "Volvo", "Volvo", 1, 2015, false), noYear, doc("c", "Scania", "Scania", 1, 2022, false))

	for _, s := range []engine.SortField{engine.Asc("year"), engine.Desc("year")} {
		resp, err := e.Query(context.Background(), &engine.Query{Sort: []engine.SortField{s}, Size: 10})
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Hits[2].ID)
	}
}

func TestQuery_PaginationAndSource(t *testing.T) {
	var docs []domain.SearchDocument
	for i := 0; i < 25; i++ {
		docs = append(docs, doc(fmt.Sprintf("id-%02d", i), "Truck", "Volvo", float64(i), 2020, false))
	}
	e := seeded(t, docs...)

	resp, err := e.Query(context.Background(), &engine.Query{
		Sort:   []engine.SortField{engine.Asc("price")},
		From:   20,
		Size:   10,
		Source: []string{"title"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 25, resp.Total)
	require.Len(t, resp.Hits, 5)
	assert.Equal(t, "id-20", resp.Hits[0].ID)
	assert.JSONEq(t, `{"title":"Truck"}`, string(resp.Hits[0].Source))
}

func TestQuery_Aggregations(t *testing.T) {
	a := doc("a", "Volvo FH", "Volvo", 5000, 2012, false)
	b := doc("b", "Volvo FM", "Volvo", 15000, 2016, false)
	c := doc("c", "Scania R", "Scania", 120000, 2022, false)
	e := seeded(t, a, b, c)

	resp, err := e.Query(context.Background(), &engine.Query{
		Size: 0,
		Aggregations: []engine.Aggregation{
			{Name: "brands", Terms: &engine.TermsAggregation{Field: "brand_slug", Size: 10, LabelField: "brand_name.keyword"}},
			{Name: "price", Range: &engine.RangeAggregation{Field: "price", Ranges: []engine.RangeBucket{
				{Key: "0-10000", To: ptr(10000.0)},
				{Key: "10000-100000", From: ptr(10000.0), To: ptr(100000.0)},
				{Key: "100000+", From: ptr(100000.0)},
			}}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)

	var brands termsAggResult
	require.NoError(t, json.Unmarshal(resp.Aggregations["brands"], &brands))
	require.Len(t, brands.Buckets, 2)
	assert.Equal(t, "volvo", brands.Buckets[0].Key)
	assert.EqualValues(t, 2, brands.Buckets[0].DocCount)
	assert.Equal(t, "Volvo", brands.Buckets[0].Label.Buckets[0].Key)

	var price rangeAggResult
	require.NoError(t, json.Unmarshal(resp.Aggregations["price"], &price))
	counts := []int64{}
	for _, b := range price.Buckets {
		counts = append(counts, b.DocCount)
	}
	assert.Equal(t, []int64{1, 1, 1}, counts)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 1, levenshtein("volvoo", "volvo", 2))
	assert.Equal(t, 1, levenshtein("man", "men", 2))
	assert.Equal(t, 0, levenshtein("daf", "daf", 2))
	assert.Equal(t, 3, levenshtein("abc", "xyzabc", 2), "stops past the limit")
}

func TestFold(t *testing.T) {
	assert.Equal(t, "kasten-lkw uber", fold("Kästen-LKW Über"))
	assert.Equal(t, []string{"citroen", "jumper", "l3h2"}, tokenize("Citroën Jumper L3H2"))
}
