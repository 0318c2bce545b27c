package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/devis-app/internal/httpx"
	"github.com/diewo77/devis-app/internal/services"
)

// writeServiceError maps core errors to API status codes. Unknown errors
// stay opaque 500s; the detail goes to the log, not the client.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMissingHierarchyLevel):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "missing_hierarchy_level", err.Error())
	case errors.Is(err, services.ErrAncestorNotFound):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "ancestor_not_found", err.Error())
	case errors.Is(err, services.ErrStructuralNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return false
	}
	return true
}
