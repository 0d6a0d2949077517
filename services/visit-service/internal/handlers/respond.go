package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error     string   `json:"error"`
	RecordIDs []string `json:"record_ids,omitempty"`
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		validation *scheduling.ValidationError
		conflict   *scheduling.ConflictError
		stale      *scheduling.StaleStateError
		forbidden  *scheduling.ForbiddenError
		notFound   *scheduling.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Error(), RecordIDs: conflict.RecordIDs})
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, errorBody{Error: stale.Error()})
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: forbidden.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Error()})
	case errors.Is(err, scheduling.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store unavailable, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
