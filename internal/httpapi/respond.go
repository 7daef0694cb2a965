package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"focus-keeper/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps an error kind onto a status code. Causes of storage and
// internal failures are logged, not sent to the client.
func writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) (int, string) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal error"
	}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, e.Msg
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, e.Msg
	case apperr.KindConflict:
		return http.StatusConflict, e.Msg
	case apperr.KindStorage:
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
