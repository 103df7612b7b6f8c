package controllers

import (
	"net/http"

	"github.com/windregistry/masterdata/pkg/httpapi"
)

// ListOptions bounds pagination for every list endpoint.
type ListOptions struct {
	PageSize    int
	MaxPageSize int
}

func (o ListOptions) withDefaults() ListOptions {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxPageSize < o.PageSize {
		o.MaxPageSize = max(o.PageSize, 1000)
	}
	return o
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = httpapi.WriteError(w, status, code, message, httpapi.RequestMeta(r))
}

func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
}
