package pagination

// Defaults for offset pagination.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a normalized page request.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// New normalizes a page request: page is floored at 1, a non-positive
// perPage falls back to DefaultPerPage and anything above MaxPerPage is capped.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// Offset is the zero-based index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta describes a page of a larger result set.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewMeta computes page counts for total items.
func NewMeta(p Params, total int64) Meta {
	pages := 0
	if p.PerPage > 0 {
		pages = int(total / int64(p.PerPage))
		if total%int64(p.PerPage) > 0 {
			pages++
		}
	}
	return Meta{
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalCount: total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}
