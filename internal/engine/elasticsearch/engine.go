// Package elasticsearch implements engine.Engine on an Elasticsearch 8 cluster.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/schema"
	"github.com/utafrali/listing-search/pkg/tracing"
)

const tracerName = "github.com/utafrali/listing-search/internal/engine/elasticsearch"

// Engine stores listing documents in one Elasticsearch index.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Refresher = (*Engine)(nil)
)

// Option customizes an Engine.
type Option func(*Engine)

// WithRefresh sets the refresh policy for writes ("true", "false" or "wait_for").
func WithRefresh(policy string) Option {
	return func(e *Engine) { e.refresh = policy }
}

// New creates an engine bound to indexName.
func New(client *elasticsearch.Client, indexName string, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		indexName: indexName,
		refresh:   "false",
		logger:    logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// IndexName returns the bound index.
func (e *Engine) IndexName() string {
	return e.indexName
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

// responseError decodes an error response into a descriptive error.
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)
	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("elasticsearch %s: unexpected status %s", op, res.Status())
}

// errorType peeks at the error type of a failed response without consuming it.
func errorType(res *esapi.Response) (string, []byte) {
	body, _ := io.ReadAll(res.Body)
	res.Body = io.NopCloser(bytes.NewReader(body))
	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return "", body
	}
	return errResp.Error.Type, body
}

func (e *Engine) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs,
		attribute.String("db.system", "elasticsearch"),
		attribute.String("db.elasticsearch.index", e.indexName),
	)
	return tracing.Start(ctx, tracerName, "elasticsearch."+op, attrs...)
}

// TemplateName returns the name of the index template installed by CreateIndex.
func (e *Engine) TemplateName() string {
	return e.indexName + "-template"
}

// putTemplate installs def as a composable template for the index name. The
// index and bulk APIs auto-create a missing index, and a write racing a
// drop/create must not leave an index with dynamic mappings.
func (e *Engine) putTemplate(ctx context.Context, def *schema.Definition) error {
	body, err := def.TemplateJSON(e.indexName)
	if err != nil {
		return fmt.Errorf("elasticsearch put template: encode definition: %w", err)
	}

	res, err := e.client.Indices.PutIndexTemplate(
		e.TemplateName(),
		bytes.NewReader(body),
		e.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch put template: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("put template", res)
	}
	return nil
}

// CreateIndex installs the index template and creates the index from def.
// The template is refreshed even when the index already exists.
func (e *Engine) CreateIndex(ctx context.Context, def *schema.Definition) (err error) {
	ctx, end := e.span(ctx, "CreateIndex")
	defer func() { end(err) }()

	if err := e.putTemplate(ctx, def); err != nil {
		return err
	}

	body, err := def.JSON()
	if err != nil {
		return fmt.Errorf("elasticsearch create index: encode definition: %w", err)
	}

	res, err := e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		if typ, _ := errorType(res); typ == "resource_already_exists_exception" {
			return engine.ErrIndexExists
		}
		return responseError("create index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// DeleteIndex drops the index.
func (e *Engine) DeleteIndex(ctx context.Context) (err error) {
	ctx, end := e.span(ctx, "DeleteIndex")
	defer func() { end(err) }()

	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return engine.ErrIndexNotFound
	}
	if res.IsError() {
		return responseError("delete index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

// Upsert indexes one document under its listing ID.
func (e *Engine) Upsert(ctx context.Context, doc *domain.SearchDocument) (err error) {
	ctx, end := e.span(ctx, "Upsert", attribute.String("document.id", doc.ID))
	defer func() { end(err) }()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		if typ, _ := errorType(res); typ == "index_not_found_exception" {
			return engine.ErrIndexNotFound
		}
	}
	if res.IsError() {
		return responseError("upsert", res)
	}

	e.logger.DebugContext(ctx, "indexed listing", slog.String("id", doc.ID))
	return nil
}

// BulkUpsert indexes docs through the bulk NDJSON API and reports per-item failures.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) (failures []engine.BulkFailure, err error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ctx, end := e.span(ctx, "BulkUpsert", attribute.Int("documents", len(docs)))
	defer func() { end(err) }()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]any{"index": map[string]any{"_index": e.indexName, "_id": docs[i].ID}}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(&docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document %s: %w", docs[i].ID, err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("bulk", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}
	if !bulkResp.Errors {
		return nil, nil
	}

	for _, item := range bulkResp.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			if result.Error.Type == "index_not_found_exception" {
				return nil, engine.ErrIndexNotFound
			}
			failures = append(failures, engine.BulkFailure{
				ID:     result.ID,
				Reason: result.Error.Type + ": " + result.Error.Reason,
			})
		}
	}
	return failures, nil
}

// Delete removes one document.
func (e *Engine) Delete(ctx context.Context, id string) (err error) {
	ctx, end := e.span(ctx, "Delete", attribute.String("document.id", id))
	defer func() { end(err) }()

	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		if typ, _ := errorType(res); typ == "index_not_found_exception" {
			return engine.ErrIndexNotFound
		}
		return engine.ErrDocumentNotFound
	}
	if res.IsError() {
		return responseError("delete", res)
	}
	return nil
}

// Query runs q and decodes hits and aggregations.
func (e *Engine) Query(ctx context.Context, q *engine.Query) (resp *engine.Response, err error) {
	ctx, end := e.span(ctx, "Query", attribute.Int("from", q.From), attribute.Int("size", q.Size))
	defer func() { end(err) }()

	data, err := json.Marshal(buildRequest(q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, engine.ErrIndexNotFound
	}
	if res.IsError() {
		return nil, responseError("search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	resp = &engine.Response{
		Hits:         make([]engine.Hit, 0, len(esResp.Hits.Hits)),
		Total:        esResp.Hits.Total.Value,
		Aggregations: esResp.Aggregations,
		TookMs:       esResp.Took,
	}
	for _, h := range esResp.Hits.Hits {
		hit := engine.Hit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		resp.Hits = append(resp.Hits, hit)
	}
	return resp, nil
}

// Count returns the number of documents in the index.
func (e *Engine) Count(ctx context.Context) (n int64, err error) {
	ctx, end := e.span(ctx, "Count")
	defer func() { end(err) }()

	res, err := e.client.Count(
		e.client.Count.WithIndex(e.indexName),
		e.client.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return 0, engine.ErrIndexNotFound
	}
	if res.IsError() {
		return 0, responseError("count", res)
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("elasticsearch count: decode response: %w", err)
	}
	return body.Count, nil
}

// Refresh makes recent writes searchable.
func (e *Engine) Refresh(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.indexName),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("refresh", res)
	}
	return nil
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}
