package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/pkg/httputil"
)

// ListingIndexer syncs single listings into the index.
type ListingIndexer interface {
	IndexOne(ctx context.Context, id string) error
	RemoveOne(ctx context.Context, id string) error
}

// Reindexer starts and inspects background reindex runs.
type Reindexer interface {
	Start(ctx context.Context, fresh bool) (*domain.ReindexRun, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ReindexRun, error)
	Overview(ctx context.Context, limit int) (*domain.ReindexOverview, error)
}

// IndexManager creates, drops and inspects the search index.
type IndexManager interface {
	EnsureIndex(ctx context.Context) error
	DropIndex(ctx context.Context) error
	Stats(ctx context.Context) (*domain.IndexStats, error)
}

// maxRecentRuns caps the limit accepted by ListReindexRuns.
const maxRecentRuns = 100

// AdminHandler handles the operator endpoints that mutate the index.
type AdminHandler struct {
	indexer   ListingIndexer
	reindexer Reindexer
	indexes   IndexManager
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(indexer ListingIndexer, reindexer Reindexer, indexes IndexManager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		indexer:   indexer,
		reindexer: reindexer,
		indexes:   indexes,
		logger:    logger,
	}
}

// IndexListing handles PUT /api/v1/search/listings/{id}
func (h *AdminHandler) IndexListing(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.indexer.IndexOne(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id.String(), "status": "synced"}})
}

// RemoveListing handles DELETE /api/v1/search/listings/{id}
func (h *AdminHandler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.indexer.RemoveOne(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id.String(), "status": "removed"}})
}

// Reindex handles POST /api/v1/search/reindex
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	fresh, _, err := httputil.QueryBool(r, "fresh")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	run, err := h.reindexer.Start(r.Context(), fresh)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/search/reindex/"+run.ID.String())
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: run})
}

// ListReindexRuns handles GET /api/v1/search/reindex
func (h *AdminHandler) ListReindexRuns(w http.ResponseWriter, r *http.Request) {
	limit, _, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if limit > maxRecentRuns {
		limit = maxRecentRuns
	}

	overview, err := h.reindexer.Overview(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: overview})
}

// GetReindexRun handles GET /api/v1/search/reindex/{runID}
func (h *AdminHandler) GetReindexRun(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}

	run, err := h.reindexer.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: run})
}

// EnsureIndex handles POST /api/v1/search/index
func (h *AdminHandler) EnsureIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.indexes.EnsureIndex(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "ready"}})
}

// IndexStats handles GET /api/v1/search/index
func (h *AdminHandler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.indexes.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// DropIndex handles DELETE /api/v1/search/index
func (h *AdminHandler) DropIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.indexes.DropIndex(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "dropped"}})
}
