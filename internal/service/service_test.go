package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/engine/memory"
	"github.com/utafrali/listing-search/internal/facets"
	"github.com/utafrali/listing-search/internal/projector"
	"github.com/utafrali/listing-search/internal/schema"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func listingAgg(id, title string, n int) *domain.ListingAggregate {
	created := baseTime.Add(time.Duration(n) * time.Minute)
	return &domain.ListingAggregate{
		Listing: domain.Listing{
			ID:          id,
			Title:       title,
			Status:      domain.StatusActive,
			Price:       ptr(float64(10000 * (n + 1))),
			Currency:    "EUR",
			Year:        ptr(2010 + n%12),
			Condition:   "used",
			CountryCode: "DE",
			PublishedAt: &created,
			CreatedAt:   created,
		},
		Brand: &domain.Brand{ID: "b-volvo", Name: "Volvo", Slug: "volvo"},
	}
}

// fakeSource is an in-memory ListingSource.
type fakeSource struct {
	mu        sync.Mutex
	listings  map[string]*domain.ListingAggregate
	listCalls int
	getErr    error
	listErr   error
	onList    func(offset int)
}

func newFakeSource(aggs ...*domain.ListingAggregate) *fakeSource {
	s := &fakeSource{listings: map[string]*domain.ListingAggregate{}}
	for _, a := range aggs {
		s.put(a)
	}
	return s
}

func (s *fakeSource) put(a *domain.ListingAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[a.Listing.ID] = a
}

func (s *fakeSource) GetAggregate(_ context.Context, id string) (*domain.ListingAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	a, ok := s.listings[id]
	if !ok {
		return nil, apperrors.NotFound("listing", id)
	}
	return a, nil
}

func (s *fakeSource) ListIndexable(ctx context.Context, offset, limit int) ([]*domain.ListingAggregate, error) {
	s.mu.Lock()
	s.listCalls++
	hook := s.onList
	var active []*domain.ListingAggregate
	for _, a := range s.listings {
		if a.Indexable() {
			active = append(active, a)
		}
	}
	listErr := s.listErr
	s.mu.Unlock()

	if hook != nil {
		hook(offset)
	}
	if listErr != nil {
		return nil, listErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(active, func(i, j int) bool {
		ci, cj := active[i].Listing.CreatedAt, active[j].Listing.CreatedAt
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return active[i].Listing.ID < active[j].Listing.ID
	})
	if offset >= len(active) {
		return nil, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

// hookEngine wraps an engine to inject failures.
type hookEngine struct {
	engine.Engine
	mu        sync.Mutex
	queries   int
	queryErr  error
	bulkErr   error
	afterBulk func()
}

func (h *hookEngine) Query(ctx context.Context, q *engine.Query) (*engine.Response, error) {
	h.mu.Lock()
	h.queries++
	err := h.queryErr
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Engine.Query(ctx, q)
}

func (h *hookEngine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) ([]engine.BulkFailure, error) {
	if h.bulkErr != nil {
		return nil, h.bulkErr
	}
	failures, err := h.Engine.BulkUpsert(ctx, docs)
	if h.afterBulk != nil {
		h.afterBulk()
	}
	return failures, err
}

type recordingSink struct {
	mu       sync.Mutex
	failures []engine.BulkFailure
}

func (r *recordingSink) IndexFailed(_ context.Context, failures []engine.BulkFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failures...)
	return nil
}

func newIndexer(eng engine.Engine, src *fakeSource, sink FailureSink, batch int) *Indexer {
	logger := newTestLogger()
	return NewIndexer(eng, src, projector.New("en"), NewSchemaManager(eng, schema.DefaultOptions(), logger), sink, batch, logger)
}

func newIndexedMemory() *memory.Engine {
	return memory.NewWithIndex(schema.Build(schema.DefaultOptions()))
}

func newSearch(eng engine.Engine, cache SuggestCache) *SearchService {
	return NewSearchService(eng, SearchConfig{
		Facets: facets.Config{
			PriceBuckets: []float64{10000, 25000, 50000, 100000},
			YearBuckets:  []float64{2010, 2015, 2020},
		},
	}, cache, newTestLogger())
}

func TestSchemaManager_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	m := NewSchemaManager(eng, schema.DefaultOptions(), newTestLogger())

	require.NoError(t, m.EnsureIndex(ctx))
	require.NoError(t, m.EnsureIndex(ctx))
	assert.Same(t, m.Definition(), eng.Definition())

	require.NoError(t, m.DropIndex(ctx))
	require.NoError(t, m.DropIndex(ctx))
	assert.Nil(t, eng.Definition())
}

func TestSchemaManager_Stats(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	m := NewSchemaManager(eng, schema.DefaultOptions(), newTestLogger())

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Exists)
	assert.Equal(t, domain.SchemaVersion, stats.SchemaVersion)

	require.NoError(t, m.EnsureIndex(ctx))
	require.NoError(t, eng.Upsert(ctx, &domain.SearchDocument{ID: "a", Title: "MAN TGX", Status: domain.StatusActive}))

	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, int64(1), stats.Documents)
}

func TestIndexOne_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	src := newFakeSource(listingAgg("l-1", "Volvo FH 500", 1))
	idx := newIndexer(eng, src, nil, 0)

	require.NoError(t, idx.IndexOne(ctx, "l-1"))
	first, ok := eng.Get("l-1")
	require.True(t, ok)

	require.NoError(t, idx.IndexOne(ctx, "l-1"))
	second, ok := eng.Get("l-1")
	require.True(t, ok)

	n, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, first, second)
}

func TestIndexOne_RemovesWhenNotIndexable(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	agg := listingAgg("l-1", "Volvo FH 500", 1)
	src := newFakeSource(agg)
	idx := newIndexer(eng, src, nil, 0)

	require.NoError(t, idx.IndexOne(ctx, "l-1"))

	sold := *agg
	sold.Listing.Status = domain.StatusSold
	src.put(&sold)
	require.NoError(t, idx.IndexOne(ctx, "l-1"))
	_, ok := eng.Get("l-1")
	assert.False(t, ok)

	deleted := *agg
	deleted.Listing.DeletedAt = ptr(baseTime)
	src.put(&deleted)
	require.NoError(t, idx.IndexOne(ctx, "l-1"), "removing an absent document is a no-op")
}

func TestIndexOne_MissingListingRemovesStaleDocument(t *testing.T) {
	ctx := context.Background()
	eng := newIndexedMemory()
	require.NoError(t, eng.Upsert(ctx, &domain.SearchDocument{ID: "ghost", Title: "Stale", Status: domain.StatusActive}))

	idx := newIndexer(eng, newFakeSource(), nil, 0)
	require.NoError(t, idx.IndexOne(ctx, "ghost"))

	_, ok := eng.Get("ghost")
	assert.False(t, ok)
}

func TestIndexOne_CreatesMissingIndex(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	idx := newIndexer(eng, newFakeSource(listingAgg("l-1", "Volvo FH 500", 1)), nil, 0)

	require.NoError(t, idx.IndexOne(ctx, "l-1"))
	require.NotNil(t, eng.Definition())
	_, ok := eng.Get("l-1")
	assert.True(t, ok)
}

func TestIndexOne_BetweenDropAndEnsureKeepsDefinition(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	idx := newIndexer(eng, newFakeSource(listingAgg("l-1", "Volvo FH 500", 1)), nil, 0)
	m := NewSchemaManager(eng, schema.DefaultOptions(), newTestLogger())

	require.NoError(t, m.EnsureIndex(ctx))
	require.NoError(t, m.DropIndex(ctx))
	require.NoError(t, idx.IndexOne(ctx, "l-1"))
	require.NoError(t, m.EnsureIndex(ctx))

	def := eng.Definition()
	require.NotNil(t, def)
	assert.Equal(t, m.Definition().Mappings, def.Mappings)
	assert.Equal(t, m.Definition().Settings, def.Settings)
	_, ok := eng.Get("l-1")
	assert.True(t, ok)
}

func TestIndexOne_Errors(t *testing.T) {
	ctx := context.Background()

	src := newFakeSource()
	src.getErr = errors.New("connection refused")
	err := newIndexer(memory.New(), src, nil, 0).IndexOne(ctx, "l-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	bad := listingAgg("l-2", "", 1)
	err = newIndexer(memory.New(), newFakeSource(bad), nil, 0).IndexOne(ctx, "l-2")
	assert.ErrorIs(t, err, projector.ErrInvalidDocument)
}

func TestRemoveOne_NotFoundIsSuccess(t *testing.T) {
	idx := newIndexer(memory.New(), newFakeSource(), nil, 0)
	assert.NoError(t, idx.RemoveOne(context.Background(), "nope"))
}

func TestBulkIndex_PartialFailure(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	eng.RejectWhen(func(d *domain.SearchDocument) error {
		if d.ID == "l-17" {
			return errors.New("mapper_parsing_exception: failed to parse field [price]")
		}
		return nil
	})
	sink := &recordingSink{}
	idx := newIndexer(eng, newFakeSource(), sink, 0)

	aggs := make([]*domain.ListingAggregate, 0, 50)
	for i := 0; i < 50; i++ {
		aggs = append(aggs, listingAgg(fmt.Sprintf("l-%d", i), fmt.Sprintf("Truck %d", i), i))
	}

	report, err := idx.BulkIndex(ctx, aggs)
	require.NoError(t, err)
	assert.Equal(t, 49, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"l-17"}, report.FailedIDs)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "l-17: mapper_parsing_exception")

	n, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(49), n)

	require.Len(t, sink.failures, 1)
	assert.Equal(t, "l-17", sink.failures[0].ID)
}

func TestBulkIndex_SkipsAndProjectionFailures(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()
	idx := newIndexer(eng, newFakeSource(), nil, 0)

	draft := listingAgg("draft", "Draft listing", 1)
	draft.Listing.Status = domain.StatusDraft

	var aggs []*domain.ListingAggregate
	aggs = append(aggs, listingAgg("ok", "DAF XF", 2), draft)
	for i := 0; i < 7; i++ {
		bad := listingAgg(fmt.Sprintf("bad-%d", i), "Broken", i)
		bad.Listing.Price = ptr(-1.0)
		aggs = append(aggs, bad)
	}

	report, err := idx.BulkIndex(ctx, aggs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 7, report.Failed)
	assert.Len(t, report.FailedIDs, 7)
	assert.Len(t, report.Errors, domain.MaxReportedErrors)
}

func TestBulkIndex_RequestFailure(t *testing.T) {
	eng := &hookEngine{Engine: memory.New(), bulkErr: errors.New("cluster unreachable")}
	idx := newIndexer(eng, newFakeSource(), nil, 0)

	_, err := idx.BulkIndex(context.Background(), []*domain.ListingAggregate{listingAgg("a", "MAN TGX", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster unreachable")
}

func TestReindexAll_Completeness(t *testing.T) {
	ctx := context.Background()
	eng := memory.New()

	src := newFakeSource()
	for i := 0; i < 7; i++ {
		src.put(listingAgg(fmt.Sprintf("active-%d", i), fmt.Sprintf("Scania R %d", i), i))
	}
	for i := 0; i < 4; i++ {
		a := listingAgg(fmt.Sprintf("inactive-%d", i), "Archived", i)
		a.Listing.Status = domain.StatusArchived
		src.put(a)
	}

	idx := newIndexer(eng, src, nil, 3)
	total, err := idx.ReindexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	n, err := eng.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 3, src.listCalls, "batches of 3, 3 and a short batch of 1")
}

func TestReindexAll_FreshDropsStaleDocuments(t *testing.T) {
	ctx := context.Background()
	eng := newIndexedMemory()
	require.NoError(t, eng.Upsert(ctx, &domain.SearchDocument{ID: "stale", Title: "Old", Status: domain.StatusActive}))

	idx := newIndexer(eng, newFakeSource(listingAgg("a", "Iveco S-Way", 1)), nil, 10)

	total, err := idx.ReindexAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, ok := eng.Get("stale")
	assert.True(t, ok, "a non-fresh reindex keeps existing documents")

	total, err = idx.ReindexAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, ok = eng.Get("stale")
	assert.False(t, ok)
}

func TestReindexAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource()
	for i := 0; i < 6; i++ {
		src.put(listingAgg(fmt.Sprintf("l-%d", i), "Renault T", i))
	}
	eng := &hookEngine{Engine: memory.New(), afterBulk: cancel}
	idx := newIndexer(eng, src, nil, 2)

	total, err := idx.ReindexAll(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, src.listCalls)
}

func TestReindexAll_SourceError(t *testing.T) {
	src := newFakeSource()
	src.listErr = errors.New("connection reset")
	idx := newIndexer(memory.New(), src, nil, 2)

	total, err := idx.ReindexAll(context.Background(), false)
	require.Error(t, err)
	assert.Zero(t, total)
	assert.Contains(t, err.Error(), "connection reset")
}

func seedSearch(t *testing.T, docs ...domain.SearchDocument) *memory.Engine {
	t.Helper()
	eng := newIndexedMemory()
	failures, err := eng.BulkUpsert(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, failures)
	return eng
}

func searchDoc(id, title string, featured bool, price float64) domain.SearchDocument {
	published := baseTime.Add(time.Duration(len(id)) * time.Hour)
	return domain.SearchDocument{
		ID:            id,
		SchemaVersion: domain.SchemaVersion,
		Title:         title,
		BrandName:     "Volvo",
		BrandSlug:     "volvo",
		Condition:     "used",
		CountryCode:   "DE",
		Status:        domain.StatusActive,
		IsFeatured:    featured,
		Price:         price,
		Year:          ptr(2019),
		PublishedAt:   &published,
	}
}

func TestSearch_OnlyActiveDocuments(t *testing.T) {
	sold := searchDoc("sold", "Volvo FH 460", false, 50000)
	sold.Status = domain.StatusSold
	eng := seedSearch(t, searchDoc("active", "Volvo FH 500", false, 60000), sold)

	result, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{Query: "volvo"})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "active", result.Hits[0].Document.ID)
}

func TestSearch_FeaturedFirstOnTies(t *testing.T) {
	eng := seedSearch(t,
		searchDoc("plain", "Scania R 450", false, 70000),
		searchDoc("promo", "Scania R 450", true, 70000),
	)

	result, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{Query: "scania r 450"})
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "promo", result.Hits[0].Document.ID)
}

func TestSearch_FacetsMatchTotal(t *testing.T) {
	a := searchDoc("a", "Volvo FH", false, 5000)
	b := searchDoc("b", "Volvo FM", false, 30000)
	b.Condition = "new"
	b.CountryCode = "NL"
	c := searchDoc("c", "Volvo FMX", false, 120000)
	c.BrandSlug = "volvo-trucks"
	eng := seedSearch(t, a, b, c)

	result, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{PageSize: 1})
	require.NoError(t, err)
	require.NotNil(t, result.Facets)
	assert.Len(t, result.Hits, 1, "facets are independent of pagination")

	sum := func(buckets []domain.FacetBucket) int64 {
		var n int64
		for _, b := range buckets {
			n += b.Count
		}
		return n
	}
	var price int64
	for _, r := range result.Facets.PriceRanges {
		price += r.Count
	}
	assert.Equal(t, result.Total, sum(result.Facets.Conditions))
	assert.Equal(t, result.Total, sum(result.Facets.Countries))
	assert.Equal(t, result.Total, sum(result.Facets.Brands))
	assert.Equal(t, result.Total, price)
}

func TestSearch_FilterNarrowsFacets(t *testing.T) {
	b := searchDoc("b", "Volvo FM", false, 30000)
	b.CountryCode = "NL"
	eng := seedSearch(t, searchDoc("a", "Volvo FH", false, 5000), b)

	result, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{CountryCode: "nl"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Facets.Countries, 1)
	assert.Equal(t, "NL", result.Facets.Countries[0].Key)
}

func TestSearch_InvalidSort(t *testing.T) {
	eng := &hookEngine{Engine: memory.New()}
	_, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{Sort: "random"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, eng.queries)
}

func TestSearch_EngineFailureIsUnavailable(t *testing.T) {
	eng := &hookEngine{Engine: memory.New(), queryErr: errors.New("circuit breaker is open")}

	_, err := newSearch(eng, nil).Search(context.Background(), domain.SearchParams{Query: "volvo"})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "search temporarily unavailable", appErr.Message)
}

func TestSuggest_Dedupes(t *testing.T) {
	eng := seedSearch(t,
		searchDoc("a", "Volvo FH 500", true, 1),
		searchDoc("bb", "volvo fh 500", false, 1),
		searchDoc("ccc", "Volvo FM 460", false, 1),
	)

	titles, err := newSearch(eng, nil).Suggest(context.Background(), "vol", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Volvo FH 500", "Volvo FM 460"}, titles)
}

func TestSuggest_CapsResults(t *testing.T) {
	var docs []domain.SearchDocument
	for i := 0; i < 8; i++ {
		docs = append(docs, searchDoc(fmt.Sprintf("d%d", i), fmt.Sprintf("DAF XF %d", 400+i), false, 1))
	}
	eng := seedSearch(t, docs...)

	titles, err := newSearch(eng, nil).Suggest(context.Background(), "daf", 3)
	require.NoError(t, err)
	assert.Len(t, titles, 3)
}

func TestSuggest_EmptyPrefixSkipsEngine(t *testing.T) {
	eng := &hookEngine{Engine: memory.New()}

	titles, err := newSearch(eng, nil).Suggest(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.NotNil(t, titles)
	assert.Empty(t, titles)
	assert.Zero(t, eng.queries)
}

func TestSuggest_EngineFailureIsUnavailable(t *testing.T) {
	eng := &hookEngine{Engine: memory.New(), queryErr: errors.New("timeout")}

	_, err := newSearch(eng, nil).Suggest(context.Background(), "vol", 5)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

type fakeCache struct {
	data   map[string][]string
	getErr error
	sets   int
}

func (c *fakeCache) key(prefix string, limit int) string {
	return fmt.Sprintf("%s:%d", prefix, limit)
}

func (c *fakeCache) GetSuggestions(_ context.Context, prefix string, limit int) ([]string, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[c.key(prefix, limit)]
	return v, ok, nil
}

func (c *fakeCache) SetSuggestions(_ context.Context, prefix string, limit int, titles []string) error {
	c.sets++
	c.data[c.key(prefix, limit)] = titles
	return nil
}

func TestSuggest_UsesCache(t *testing.T) {
	eng := &hookEngine{Engine: seedSearch(t, searchDoc("a", "Volvo FH 500", false, 1))}
	cache := &fakeCache{data: map[string][]string{}}
	svc := newSearch(eng, cache)

	first, err := svc.Suggest(context.Background(), "vol", 5)
	require.NoError(t, err)
	second, err := svc.Suggest(context.Background(), "vol", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, eng.queries)
	assert.Equal(t, 1, cache.sets)
}

func TestSuggest_CacheErrorsAreBypassed(t *testing.T) {
	eng := &hookEngine{Engine: seedSearch(t, searchDoc("a", "Volvo FH 500", false, 1))}
	cache := &fakeCache{data: map[string][]string{}, getErr: errors.New("redis: connection refused")}

	titles, err := newSearch(eng, cache).Suggest(context.Background(), "vol", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Volvo FH 500"}, titles)
	assert.Equal(t, 1, eng.queries)
}
