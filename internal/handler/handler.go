// Package handler contains HTTP request handlers for the auction core.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aeromarket/transfercore/internal/apperr"
	"github.com/aeromarket/transfercore/internal/model"
)

// validate is shared across every handler in this package.
var validate = validator.New()

// parseMoney decodes a decimal string into a model.Money, rejecting a
// float-shaped JSON number outright by only ever accepting a string.
func parseMoney(s string) (model.Money, error) {
	return decimal.NewFromString(s)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to an HTTP status: Validation → 400,
// Conflict → 409, NotFound → 404, Unauthorized → 401, Forbidden → 403,
// Transient → 503, anything else → 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := apperr.As(err)
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("handler: unclassified error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindTransient:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": string(kind), "message": err.Error()})
}

// decodeJSON decodes the request body into v, returning a *apperr.Error of
// KindValidation on malformed input.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("malformed request body: %v", err)
	}
	return nil
}
