package engine

// ScoreField sorts by relevance score.
const ScoreField = "_score"

// Query is a backend-neutral search request.
type Query struct {
	// Text is the scored full-text clause. Nil matches every document.
	Text *TextQuery
	// Filters are conjunctive and do not affect scoring.
	Filters      []Filter
	Sort         []SortField
	From         int
	Size         int
	Aggregations []Aggregation
	// Source restricts the returned document fields. Nil returns all fields.
	Source []string
}

// TextQuery matches Query against Fields. Field names may carry a "^boost"
// suffix. A single field without fuzziness is a plain match requiring every term.
type TextQuery struct {
	Query     string
	Fields    []string
	Fuzziness string
}

// Filter is a term or range condition on one field.
type Filter struct {
	Field string
	Term  any
	Range *Range
}

// Range bounds are inclusive. Nil bounds are open.
type Range struct {
	Gte *float64
	Lte *float64
}

// Term builds an exact-match filter.
func Term(field string, value any) Filter {
	return Filter{Field: field, Term: value}
}

// Between builds an inclusive range filter.
func Between(field string, gte, lte *float64) Filter {
	return Filter{Field: field, Range: &Range{Gte: gte, Lte: lte}}
}

// SortField orders results by Field. Documents missing the field sort last.
type SortField struct {
	Field string
	Desc  bool
}

// Asc sorts ascending.
func Asc(field string) SortField { return SortField{Field: field} }

// Desc sorts descending.
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Aggregation is a named terms or range aggregation.
type Aggregation struct {
	Name  string
	Terms *TermsAggregation
	Range *RangeAggregation
}

// TermsAggregation buckets by keyword value, largest first. When LabelField
// is set each bucket carries a "label" sub-aggregation with its top value.
type TermsAggregation struct {
	Field      string
	Size       int
	LabelField string
}

// RangeAggregation buckets numeric values into [From, To) ranges.
type RangeAggregation struct {
	Field  string
	Ranges []RangeBucket
}

// RangeBucket is one requested range.
type RangeBucket struct {
	Key  string
	From *float64
	To   *float64
}

// LabelAggregation is the name of the sub-aggregation carrying a bucket label.
const LabelAggregation = "label"
