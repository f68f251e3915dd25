package api

import (
	"errors"
	"net/http"

	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/internal/patterns"
)

var errMissingCredentials = errors.New("missing credentials")

// respondServiceError maps domain errors onto HTTP statuses: validation
// failures are 400, missing records 404, a down store 500.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, patterns.ErrInvalidCategory), errors.Is(err, patterns.ErrInvalidSeverity):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, database.ErrStoreUnavailable):
		s.respondError(w, http.StatusInternalServerError, "Store unavailable")
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
