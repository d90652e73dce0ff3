package handler

import (
	"errors"
	"net/http"
	"strconv"

	"vellum/internal/domain"
	"vellum/internal/httputil"
)

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var versionErr *domain.VersionConflictError
	var conflictErr *domain.ConflictError

	switch {
	case errors.As(err, &versionErr):
		// The autosave client reads code/serverVersion/expectedVersion to
		// drive its conflict callback.
		httputil.RespondErrorWithExtras(w, http.StatusConflict, versionErr.Error(), map[string]interface{}{
			"code":            "CONFLICT",
			"serverVersion":   versionErr.ServerVersion,
			"expectedVersion": versionErr.ExpectedVersion,
		})
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondError(w, http.StatusConflict, conflictErr.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleCreateConflict handles conflicts during creation by returning the existing resource with 409.
// If the error is a ConflictError, it calls fetchFn to retrieve the existing resource.
func HandleCreateConflict[T any](w http.ResponseWriter, err error, fetchFn func(existingID string) (*T, error)) {
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		existing, fetchErr := fetchFn(conflictErr.ResourceID)
		if fetchErr != nil {
			handleError(w, fetchErr)
			return
		}

		httputil.RespondJSON(w, http.StatusConflict, existing)
		return
	}

	handleError(w, err)
}

// queryInt parses an integer query parameter, returning def when absent
// or unparseable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
