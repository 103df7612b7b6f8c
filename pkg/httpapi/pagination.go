package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
)

// Page is a validated page request. Page numbers start at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paged is the list envelope every paginated endpoint returns.
type Paged[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

func NewPaged[T any](items []T, p Page, total int64) Paged[T] {
	if items == nil {
		items = []T{}
	}
	pages := int64(0)
	if p.Size > 0 {
		pages = (total + int64(p.Size) - 1) / int64(p.Size)
	}
	return Paged[T]{
		Items:      items,
		Page:       p.Number,
		PageSize:   p.Size,
		TotalCount: total,
		TotalPages: pages,
	}
}

// ParsePage reads the page and pageSize query parameters.
func ParsePage(r *http.Request, defaultSize, maxSize int) (Page, error) {
	p := Page{Number: 1, Size: defaultSize}
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("page must be a positive integer, got %q", raw)
		}
		p.Number = n
	}
	if raw := q.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSize {
			return Page{}, fmt.Errorf("pageSize must be between 1 and %d, got %q", maxSize, raw)
		}
		p.Size = n
	}
	return p, nil
}
