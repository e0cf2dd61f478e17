// internal/httpapi/respond.go
//
// JSON response helpers shared by component handlers.
//
// Context
//   Handlers return two kinds of failures: client errors (validation, a
//   malformed body, an unknown ID) and everything else.  WriteError maps the
//   first kind to 4xx with a body the client can act on, and hides the
//   second kind behind a generic 500 after logging it.
//
//   Status mapping
//     *binder.ValidationError       → 400, standardized error array
//     form.ErrMalformedPayload      → 400 {"error": "malformed payload"}
//     form.ErrUnsupportedPayload    → 415 {"error": "unsupported content type"}
//     persistence.ErrRecordNotFound → 404 {"error": "not found"}
//     anything else                 → 500 {"error": "internal error"}
//
//------------------------------------------------------------------------------

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/binder/internal/binder"
	"github.com/yanizio/binder/internal/form"
	"github.com/yanizio/binder/internal/logger"
	"github.com/yanizio/binder/internal/persistence"
)

type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write json response", zap.Error(err))
	}
}

// WriteError writes err using the status mapping above.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *binder.ValidationError
	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(verr.StatusCode())
		_, _ = w.Write(verr.Body())

	case errors.Is(err, form.ErrMalformedPayload):
		WriteJSON(w, http.StatusBadRequest, errorBody{"malformed payload"})

	case errors.Is(err, form.ErrUnsupportedPayload):
		WriteJSON(w, http.StatusUnsupportedMediaType, errorBody{"unsupported content type"})

	case errors.Is(err, persistence.ErrRecordNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{"not found"})

	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorBody{"internal error"})
	}
}
