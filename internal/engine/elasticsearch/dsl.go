package elasticsearch

import (
	"github.com/utafrali/listing-search/internal/engine"
)

// buildRequest renders q as Elasticsearch query DSL.
func buildRequest(q *engine.Query) map[string]any {
	boolQuery := map[string]any{}
	if q.Text != nil {
		boolQuery["must"] = []any{textClause(q.Text)}
	} else {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}
	if filters := filterClauses(q.Filters); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"from":             q.From,
		"size":             q.Size,
		"track_total_hits": true,
	}
	if len(q.Sort) > 0 {
		body["sort"] = sortClauses(q.Sort)
		body["track_scores"] = true
	}
	if len(q.Aggregations) > 0 {
		body["aggs"] = aggregationClauses(q.Aggregations)
	}
	if q.Source != nil {
		body["_source"] = q.Source
	}
	return body
}

func textClause(t *engine.TextQuery) map[string]any {
	if len(t.Fields) == 1 && t.Fuzziness == "" {
		return map[string]any{
			"match": map[string]any{
				t.Fields[0]: map[string]any{
					"query":    t.Query,
					"operator": "and",
				},
			},
		}
	}
	mm := map[string]any{
		"query":  t.Query,
		"fields": t.Fields,
		"type":   "best_fields",
	}
	if t.Fuzziness != "" {
		mm["fuzziness"] = t.Fuzziness
	}
	return map[string]any{"multi_match": mm}
}

func filterClauses(filters []engine.Filter) []any {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		if f.Range != nil {
			bounds := map[string]any{}
			if f.Range.Gte != nil {
				bounds["gte"] = *f.Range.Gte
			}
			if f.Range.Lte != nil {
				bounds["lte"] = *f.Range.Lte
			}
			out = append(out, map[string]any{"range": map[string]any{f.Field: bounds}})
			continue
		}
		out = append(out, map[string]any{"term": map[string]any{f.Field: f.Term}})
	}
	return out
}

func sortClauses(fields []engine.SortField) []any {
	out := make([]any, 0, len(fields))
	for _, s := range fields {
		order := "asc"
		if s.Desc {
			order = "desc"
		}
		clause := map[string]any{"order": order}
		if s.Field != engine.ScoreField {
			clause["missing"] = "_last"
		}
		out = append(out, map[string]any{s.Field: clause})
	}
	return out
}

func aggregationClauses(aggs []engine.Aggregation) map[string]any {
	out := make(map[string]any, len(aggs))
	for _, a := range aggs {
		switch {
		case a.Terms != nil:
			size := a.Terms.Size
			if size <= 0 {
				size = 10
			}
			agg := map[string]any{
				"terms": map[string]any{"field": a.Terms.Field, "size": size},
			}
			if a.Terms.LabelField != "" {
				agg["aggs"] = map[string]any{
					engine.LabelAggregation: map[string]any{
						"terms": map[string]any{"field": a.Terms.LabelField, "size": 1},
					},
				}
			}
			out[a.Name] = agg
		case a.Range != nil:
			ranges := make([]any, 0, len(a.Range.Ranges))
			for _, r := range a.Range.Ranges {
				rb := map[string]any{"key": r.Key}
				if r.From != nil {
					rb["from"] = *r.From
				}
				if r.To != nil {
					rb["to"] = *r.To
				}
				ranges = append(ranges, rb)
			}
			out[a.Name] = map[string]any{
				"range": map[string]any{"field": a.Range.Field, "ranges": ranges},
			}
		}
	}
	return out
}
