package shared

import "math"

const (
	// DefaultPage is the first page index.
	DefaultPage = 1
	// DefaultPageSize applies when the caller omits pageSize.
	DefaultPageSize = 10
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. Pages are 1-indexed.
func NewPagination(page, pageSize, total int) Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page <= 0 {
		page = DefaultPage
	}
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

// Offset returns the index of the first item on the page. Pages whose offset
// does not fit in an int saturate at math.MaxInt, past any real result set.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Window returns the [start, end) bounds of the page clamped to n items.
func (p Pagination) Window(n int) (int, int) {
	start := p.Offset()
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.PageSize < n-start {
		end = start + p.PageSize
	}
	return start, end
}

// Paginate slices items to the requested page.
func Paginate[T any](items []T, page, pageSize int) ([]T, Pagination) {
	p := NewPagination(page, pageSize, len(items))
	start, end := p.Window(len(items))
	return items[start:end], p
}
