package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/service"
	"github.com/utafrali/listing-search/pkg/httputil"
	"github.com/utafrali/listing-search/pkg/pagination"
)

// SearchHandler handles the public search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Search(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	meta := pagination.NewMeta(pagination.Params{Page: result.Page, PerPage: result.PageSize}, result.Total)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result, Meta: meta})
}

// Suggest handles GET /api/v1/search/suggest
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))

	limit, _, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	suggestions, err := h.service.Suggest(r.Context(), prefix, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"suggestions": suggestions}})
}

func parseSearchParams(r *http.Request) (domain.SearchParams, error) {
	q := r.URL.Query()
	params := domain.SearchParams{
		Query:         strings.TrimSpace(q.Get("q")),
		CategorySlug:  q.Get("category"),
		BrandSlug:     q.Get("brand"),
		ModelSlug:     q.Get("model"),
		Condition:     q.Get("condition"),
		FuelType:      q.Get("fuel_type"),
		Transmission:  q.Get("transmission"),
		EmissionClass: q.Get("emission_class"),
		CountryCode:   q.Get("country"),
		City:          q.Get("city"),
		Sort:          q.Get("sort"),
	}

	if v, ok, err := httputil.QueryBool(r, "featured"); err != nil {
		return params, err
	} else if ok {
		params.Featured = &v
	}

	if v, ok, err := httputil.QueryFloat(r, "price_min"); err != nil {
		return params, err
	} else if ok {
		params.PriceMin = &v
	}
	if v, ok, err := httputil.QueryFloat(r, "price_max"); err != nil {
		return params, err
	} else if ok {
		params.PriceMax = &v
	}

	if v, ok, err := httputil.QueryInt(r, "year_min"); err != nil {
		return params, err
	} else if ok {
		params.YearMin = &v
	}
	if v, ok, err := httputil.QueryInt(r, "year_max"); err != nil {
		return params, err
	} else if ok {
		params.YearMax = &v
	}

	if v, ok, err := httputil.QueryInt(r, "mileage_min"); err != nil {
		return params, err
	} else if ok {
		km := int64(v)
		params.MileageMin = &km
	}
	if v, ok, err := httputil.QueryInt(r, "mileage_max"); err != nil {
		return params, err
	} else if ok {
		km := int64(v)
		params.MileageMax = &km
	}

	var err error
	if params.Page, _, err = httputil.QueryInt(r, "page"); err != nil {
		return params, err
	}
	if params.PageSize, _, err = httputil.QueryInt(r, "page_size"); err != nil {
		return params, err
	}
	return params, nil
}
