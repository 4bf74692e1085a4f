package memory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/utafrali/listing-search/internal/engine"
)

type termsBucket struct {
	Key      string          `json:"key"`
	DocCount int64           `json:"doc_count"`
	Label    *labelAggResult `json:"label,omitempty"`
}

type labelAggResult struct {
	Buckets []termsBucket `json:"buckets"`
}

type termsAggResult struct {
	DocCountErrorUpperBound int64         `json:"doc_count_error_upper_bound"`
	SumOtherDocCount        int64         `json:"sum_other_doc_count"`
	Buckets                 []termsBucket `json:"buckets"`
}

type rangeBucket struct {
	Key      string   `json:"key"`
	From     *float64 `json:"from,omitempty"`
	To       *float64 `json:"to,omitempty"`
	DocCount int64    `json:"doc_count"`
}

type rangeAggResult struct {
	Buckets []rangeBucket `json:"buckets"`
}

// aggregate computes aggregations over every matched document, independent
// of pagination, in the Elasticsearch response shape.
func aggregate(hits []scored, aggs []engine.Aggregation) (map[string]json.RawMessage, error) {
	if len(aggs) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(aggs))
	for _, a := range aggs {
		var result any
		switch {
		case a.Terms != nil:
			result = termsAgg(hits, a.Terms)
		case a.Range != nil:
			result = rangeAgg(hits, a.Range)
		default:
			return nil, fmt.Errorf("aggregation %q has no type", a.Name)
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal aggregation %q: %w", a.Name, err)
		}
		out[a.Name] = raw
	}
	return out, nil
}

func keyOf(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}

// topTerms counts values of field and orders them by count desc, then key asc.
func topTerms(hits []scored, field string) []termsBucket {
	counts := map[string]int64{}
	for _, h := range hits {
		if k, ok := keyOf(h.doc.fields[baseField(field)]); ok {
			counts[k]++
		}
	}
	buckets := make([]termsBucket, 0, len(counts))
	for k, n := range counts {
		buckets = append(buckets, termsBucket{Key: k, DocCount: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].DocCount != buckets[j].DocCount {
			return buckets[i].DocCount > buckets[j].DocCount
		}
		return buckets[i].Key < buckets[j].Key
	})
	return buckets
}

func termsAgg(hits []scored, t *engine.TermsAggregation) termsAggResult {
	buckets := topTerms(hits, t.Field)

	size := t.Size
	if size <= 0 {
		size = 10
	}
	var other int64
	if len(buckets) > size {
		for _, b := range buckets[size:] {
			other += b.DocCount
		}
		buckets = buckets[:size]
	}

	if t.LabelField != "" {
		for i := range buckets {
			var members []scored
			for _, h := range hits {
				if k, ok := keyOf(h.doc.fields[baseField(t.Field)]); ok && k == buckets[i].Key {
					members = append(members, h)
				}
			}
			labels := topTerms(members, t.LabelField)
			if len(labels) > 1 {
				labels = labels[:1]
			}
			buckets[i].Label = &labelAggResult{Buckets: labels}
		}
	}

	return termsAggResult{SumOtherDocCount: other, Buckets: buckets}
}

func rangeAgg(hits []scored, r *engine.RangeAggregation) rangeAggResult {
	buckets := make([]rangeBucket, 0, len(r.Ranges))
	for _, rb := range r.Ranges {
		b := rangeBucket{Key: rb.Key, From: rb.From, To: rb.To}
		for _, h := range hits {
			n, ok := h.doc.fields[baseField(r.Field)].(float64)
			if !ok {
				continue
			}
			if rb.From != nil && n < *rb.From {
				continue
			}
			if rb.To != nil && n >= *rb.To {
				continue
			}
			b.DocCount++
		}
		buckets = append(buckets, b)
	}
	return rangeAggResult{Buckets: buckets}
}
