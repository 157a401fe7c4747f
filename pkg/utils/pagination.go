package utils

import (
	"net/http"
	"strconv"
)

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// GetPaginationDetails reads page and per_page (limit is accepted as an alias)
// and returns limit, offset and page.
func GetPaginationDetails(r *http.Request) (int, int, int) {
	q := r.URL.Query()
	limitStr := q.Get("per_page")
	if limitStr == "" {
		limitStr = q.Get("limit")
	}
	limit := 20
	if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
		limit = val
	}
	if limit > 100 {
		limit = 100
	}

	page := 1
	if val, err := strconv.Atoi(q.Get("page")); err == nil && val > 0 {
		page = val
	}

	offset := (page - 1) * limit
	return limit, offset, page
}

func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}
