package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type envelope struct {
	Error body `json:"error"`
}

type body struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		var e *Error
		if errors.As(err, &e) && e.Code == CodeIdempotencyConflict {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err as {"error":{"code","description"}}. Errors outside the
// taxonomy are reported as INTERNAL_ERROR without leaking their text.
func Write(w http.ResponseWriter, err error) {
	out := body{Code: CodeInternal, Description: "Internal server error"}
	var e *Error
	if errors.As(err, &e) {
		out = body{Code: e.Code, Description: e.Description}
	}
	WriteJSON(w, Status(err), envelope{Error: out})
}

// WriteRateLimited is the reject handler for throttled callers.
func WriteRateLimited(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusTooManyRequests, envelope{Error: body{Code: CodeRateLimited, Description: "Too many requests"}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
