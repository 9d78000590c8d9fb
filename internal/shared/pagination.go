package shared

import "math"

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Page is a normalised limit/offset window for list queries.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps a requested limit/offset.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(p Page, total int) Pagination {
	return Pagination{
		Limit:      p.Limit,
		Offset:     p.Offset,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}
