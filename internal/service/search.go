package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/facets"
	"github.com/utafrali/listing-search/internal/query"
	apperrors "github.com/utafrali/listing-search/pkg/errors"
)

// DefaultOverfetch multiplies the suggestion limit to leave room for duplicates.
const DefaultOverfetch = 3

const unavailableMessage = "search temporarily unavailable"

// SuggestCache stores suggestion lists per normalized prefix and limit.
type SuggestCache interface {
	GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, bool, error)
	SetSuggestions(ctx context.Context, prefix string, limit int, titles []string) error
}

// SearchConfig tunes the read path.
type SearchConfig struct {
	Facets    facets.Config
	Overfetch int
}

// SearchService answers search and autocomplete requests.
type SearchService struct {
	engine    engine.Engine
	aggs      []engine.Aggregation
	overfetch int
	cache     SuggestCache
	logger    *slog.Logger
}

// NewSearchService creates a search service. cache may be nil.
func NewSearchService(eng engine.Engine, cfg SearchConfig, cache SuggestCache, logger *slog.Logger) *SearchService {
	overfetch := cfg.Overfetch
	if overfetch < 1 {
		overfetch = DefaultOverfetch
	}
	return &SearchService{
		engine:    eng,
		aggs:      facets.Specs(cfg.Facets),
		overfetch: overfetch,
		cache:     cache,
		logger:    logger,
	}
}

// Search runs a faceted, paginated search over active listings.
func (s *SearchService) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResult, error) {
	q, page, err := query.Search(params, s.aggs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.engine.Query(ctx, q)
	if err != nil {
		queryDuration.WithLabelValues("search", "error").Observe(time.Since(start).Seconds())
		s.logger.ErrorContext(ctx, "search query failed", slog.String("error", err.Error()))
		return nil, apperrors.ServiceUnavailable(unavailableMessage, err)
	}
	queryDuration.WithLabelValues("search", "ok").Observe(time.Since(start).Seconds())

	result := &domain.SearchResult{
		Hits:     make([]domain.SearchHit, 0, len(resp.Hits)),
		Total:    resp.Total,
		Page:     page.Page,
		PageSize: page.PerPage,
		TookMs:   resp.TookMs,
	}
	for _, h := range resp.Hits {
		var doc domain.SearchDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, apperrors.Internal(fmt.Errorf("decode hit %s: %w", h.ID, err))
		}
		result.Hits = append(result.Hits, domain.SearchHit{Document: doc, Score: h.Score})
	}

	result.Facets, err = facets.Extract(resp.Aggregations)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", params.Query),
		slog.Int64("total", result.Total),
		slog.Int64("took_ms", result.TookMs),
	)
	return result, nil
}

// Suggest returns up to limit distinct titles starting with prefix. Titles
// differing only in case count as duplicates; the first one seen wins.
func (s *SearchService) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	limit = query.SuggestLimit(limit)

	if s.cache != nil {
		titles, ok, err := s.cache.GetSuggestions(ctx, prefix, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "suggest cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return titles, nil
		}
	}

	start := time.Now()
	resp, err := s.engine.Query(ctx, query.Suggest(prefix, limit, s.overfetch))
	if err != nil {
		queryDuration.WithLabelValues("suggest", "error").Observe(time.Since(start).Seconds())
		s.logger.ErrorContext(ctx, "suggest query failed", slog.String("error", err.Error()))
		return nil, apperrors.ServiceUnavailable(unavailableMessage, err)
	}
	queryDuration.WithLabelValues("suggest", "ok").Observe(time.Since(start).Seconds())

	titles := make([]string, 0, limit)
	seen := make(map[string]struct{}, len(resp.Hits))
	for _, h := range resp.Hits {
		var src struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil || src.Title == "" {
			continue
		}
		key := strings.ToLower(src.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		titles = append(titles, src.Title)
		if len(titles) == limit {
			break
		}
	}

	if s.cache != nil {
		if err := s.cache.SetSuggestions(ctx, prefix, limit, titles); err != nil {
			s.logger.WarnContext(ctx, "suggest cache write failed", slog.String("error", err.Error()))
		}
	}
	return titles, nil
}
