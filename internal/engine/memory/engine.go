// Package memory is an in-process Engine for tests and local development.
// It approximates the Elasticsearch analyzers with lowercase/ASCII folding,
// fuzzy term matching and edge n-gram prefix matching. Synonyms are not applied.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/listing-search/internal/domain"
	"github.com/utafrali/listing-search/internal/engine"
	"github.com/utafrali/listing-search/internal/schema"
)

type storedDoc struct {
	id     string
	raw    json.RawMessage
	fields map[string]any
}

// Engine keeps documents in a map guarded by a RWMutex. Like a cluster with
// an index template, the definition of the last CreateIndex outlives
// DeleteIndex and is applied when a write finds the index missing.
type Engine struct {
	mu       sync.RWMutex
	exists   bool
	def      *schema.Definition
	template *schema.Definition
	docs     map[string]storedDoc
	reject   func(*domain.SearchDocument) error
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine with no index and no template. Writes fail with
// engine.ErrIndexNotFound until CreateIndex has run once.
func New() *Engine {
	return &Engine{docs: make(map[string]storedDoc)}
}

// NewWithIndex creates an engine whose index already exists with def.
func NewWithIndex(def *schema.Definition) *Engine {
	e := New()
	e.exists = true
	e.def = def
	e.template = def
	return e
}

// RejectWhen installs a hook that fails individual bulk items, mimicking
// mapping errors reported by a real cluster.
func (e *Engine) RejectWhen(fn func(*domain.SearchDocument) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reject = fn
}

// Definition returns the definition the index was created with, or nil.
func (e *Engine) Definition() *schema.Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.def
}

// CreateIndex creates the index.
func (e *Engine) CreateIndex(_ context.Context, def *schema.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exists {
		return engine.ErrIndexExists
	}
	e.exists = true
	e.def = def
	e.template = def
	return nil
}

// autoCreate mirrors a write to a missing index: it is created from the
// template, or the write fails when there is none. Callers hold mu.
func (e *Engine) autoCreate() error {
	if e.exists {
		return nil
	}
	if e.template == nil {
		return engine.ErrIndexNotFound
	}
	e.exists = true
	e.def = e.template
	return nil
}

// DeleteIndex drops the index and every document in it.
func (e *Engine) DeleteIndex(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return engine.ErrIndexNotFound
	}
	e.exists = false
	e.def = nil
	e.docs = make(map[string]storedDoc)
	return nil
}

func encode(doc *domain.SearchDocument) (storedDoc, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return storedDoc{}, fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return storedDoc{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return storedDoc{id: doc.ID, raw: raw, fields: fields}, nil
}

// Upsert writes one document.
func (e *Engine) Upsert(_ context.Context, doc *domain.SearchDocument) error {
	sd, err := encode(doc)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.autoCreate(); err != nil {
		return err
	}
	if e.reject != nil {
		if err := e.reject(doc); err != nil {
			return fmt.Errorf("upsert %s: %w", doc.ID, err)
		}
	}
	e.docs[doc.ID] = sd
	return nil
}

// BulkUpsert writes every document the reject hook accepts.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.SearchDocument) ([]engine.BulkFailure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.autoCreate(); err != nil {
		return nil, err
	}

	var failures []engine.BulkFailure
	for i := range docs {
		doc := &docs[i]
		if e.reject != nil {
			if err := e.reject(doc); err != nil {
				failures = append(failures, engine.BulkFailure{ID: doc.ID, Reason: err.Error()})
				continue
			}
		}
		sd, err := encode(doc)
		if err != nil {
			failures = append(failures, engine.BulkFailure{ID: doc.ID, Reason: err.Error()})
			continue
		}
		e.docs[doc.ID] = sd
	}
	return failures, nil
}

// Delete removes a document.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return engine.ErrIndexNotFound
	}
	if _, ok := e.docs[id]; !ok {
		return engine.ErrDocumentNotFound
	}
	delete(e.docs, id)
	return nil
}

// Count returns the number of stored documents.
func (e *Engine) Count(_ context.Context) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.exists {
		return 0, engine.ErrIndexNotFound
	}
	return int64(len(e.docs)), nil
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

// Get returns the stored document, for tests.
func (e *Engine) Get(id string) (*domain.SearchDocument, bool) {
	e.mu.RLock()
	sd, ok := e.docs[id]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	var doc domain.SearchDocument
	if err := json.Unmarshal(sd.raw, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

type scored struct {
	doc   storedDoc
	score float64
}

// Query evaluates q against every stored document.
func (e *Engine) Query(ctx context.Context, q *engine.Query) (*engine.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.exists {
		return nil, engine.ErrIndexNotFound
	}

	matched := make([]scored, 0, len(e.docs))
	for _, d := range e.docs {
		if !passesFilters(d.fields, q.Filters) {
			continue
		}
		score := 1.0
		if q.Text != nil {
			var ok bool
			if score, ok = textScore(d.fields, q.Text); !ok {
				continue
			}
		}
		matched = append(matched, scored{doc: d, score: score})
	}

	sortHits(matched, q.Sort)

	aggs, err := aggregate(matched, q.Aggregations)
	if err != nil {
		return nil, err
	}

	resp := &engine.Response{
		Total:        int64(len(matched)),
		Aggregations: aggs,
	}

	from := max(q.From, 0)
	end := len(matched)
	if q.Size >= 0 && from+q.Size < end {
		end = from + q.Size
	}
	for i := from; i < end; i++ {
		src, err := project(matched[i].doc, q.Source)
		if err != nil {
			return nil, err
		}
		resp.Hits = append(resp.Hits, engine.Hit{ID: matched[i].doc.id, Score: matched[i].score, Source: src})
	}
	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

func project(d storedDoc, fields []string) (json.RawMessage, error) {
	if fields == nil {
		return d.raw, nil
	}
	subset := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := d.fields[f]; ok {
			subset[f] = v
		}
	}
	raw, err := json.Marshal(subset)
	if err != nil {
		return nil, fmt.Errorf("marshal source of %s: %w", d.id, err)
	}
	return raw, nil
}

func passesFilters(fields map[string]any, filters []engine.Filter) bool {
	for _, f := range filters {
		v, ok := fields[baseField(f.Field)]
		if !ok || v == nil {
			return false
		}
		if f.Range != nil {
			n, isNum := v.(float64)
			if !isNum {
				return false
			}
			if f.Range.Gte != nil && n < *f.Range.Gte {
				return false
			}
			if f.Range.Lte != nil && n > *f.Range.Lte {
				return false
			}
			continue
		}
		if !termEqual(v, f.Term) {
			return false
		}
	}
	return true
}

func termEqual(docValue, term any) bool {
	switch t := term.(type) {
	case string:
		s, ok := docValue.(string)
		return ok && s == t
	case domain.ListingStatus:
		s, ok := docValue.(string)
		return ok && s == string(t)
	case bool:
		b, ok := docValue.(bool)
		return ok && b == t
	case int:
		n, ok := docValue.(float64)
		return ok && n == float64(t)
	case int64:
		n, ok := docValue.(float64)
		return ok && n == float64(t)
	case float64:
		n, ok := docValue.(float64)
		return ok && n == t
	default:
		return fmt.Sprint(docValue) == fmt.Sprint(term)
	}
}

// textScore scores a document against tq. A single field without fuzziness
// requires every query term; otherwise the best scoring field wins.
func textScore(fields map[string]any, tq *engine.TextQuery) (float64, bool) {
	terms := tokenize(tq.Query)
	if len(terms) == 0 {
		return 0, false
	}
	fuzzy := tq.Fuzziness != ""
	requireAll := len(tq.Fields) == 1 && !fuzzy

	best := 0.0
	for _, f := range tq.Fields {
		name, boost := parseField(f)
		s, ok := fields[baseField(name)].(string)
		if !ok || s == "" {
			continue
		}
		tokens := tokenize(s)
		prefix := isAutocomplete(name)

		hits := 0
		for _, q := range terms {
			for _, tok := range tokens {
				if termMatches(q, tok, fuzzy, prefix) {
					hits++
					break
				}
			}
		}
		if hits == 0 || (requireAll && hits < len(terms)) {
			continue
		}
		score := boost * float64(hits) / float64(len(terms))
		if score > best {
			best = score
		}
	}
	return best, best > 0
}

func sortHits(hits []scored, keys []engine.SortField) {
	sort.SliceStable(hits, func(i, j int) bool {
		for _, k := range keys {
			if c := compareKey(hits[i], hits[j], k); c != 0 {
				return c < 0
			}
		}
		return hits[i].doc.id < hits[j].doc.id
	})
}

// compareKey orders a before b (-1) or after (1). Missing values always sort last.
func compareKey(a, b scored, k engine.SortField) int {
	var av, bv any
	if k.Field == engine.ScoreField {
		av, bv = a.score, b.score
	} else {
		av, bv = a.doc.fields[baseField(k.Field)], b.doc.fields[baseField(k.Field)]
	}
	switch {
	case av == nil && bv == nil:
		return 0
	case av == nil:
		return 1
	case bv == nil:
		return -1
	}
	c := compareValues(av, bv)
	if k.Desc {
		c = -c
	}
	return c
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		y, _ := b.(float64)
		return cmpOrdered(x, y)
	case string:
		y, _ := b.(string)
		if tx, err := time.Parse(time.RFC3339Nano, x); err == nil {
			if ty, err := time.Parse(time.RFC3339Nano, y); err == nil {
				return tx.Compare(ty)
			}
		}
		return cmpOrdered(x, y)
	case bool:
		y, _ := b.(bool)
		return cmpOrdered(boolRank(x), boolRank(y))
	default:
		return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmpOrdered[T int | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
