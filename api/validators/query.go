package validators

import (
	"net/http"
	"strconv"

	"github.com/forecastlabs/openbook-backend/pkg/pagination"
)

// PaginationFromQuery reads page/limit query params with sane fallbacks.
func PaginationFromQuery(r *http.Request) pagination.Params {
	params := pagination.Params{}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	return params.Normalize()
}
