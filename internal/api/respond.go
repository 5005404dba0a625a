package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"barberbook/internal/domain"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Key     string `json:"key"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindFormat:              http.StatusBadRequest,
	domain.KindInvalidDuration:     http.StatusInternalServerError,
	domain.KindWorkerUnavailable:   http.StatusNotFound,
	domain.KindServiceNotFound:     http.StatusNotFound,
	domain.KindNotFound:            http.StatusNotFound,
	domain.KindOutsideWorkingHours: http.StatusUnprocessableEntity,
	domain.KindBreakConflict:       http.StatusUnprocessableEntity,
	domain.KindPastSlot:            http.StatusUnprocessableEntity,
	domain.KindDoubleBooking:       http.StatusConflict,
	domain.KindInvalidTransition:   http.StatusConflict,
	domain.KindIdempotencyMismatch: http.StatusConflict,
	domain.KindForbidden:           http.StatusForbidden,
}

// statusFor maps an error to its HTTP status; unclassified errors are 500.
func statusFor(err error) int {
	if code, ok := kindStatus[domain.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a domain error. Unclassified errors are reported as
// "internal" without leaking their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
			Kind:    "internal",
			Message: "internal error",
			Key:     "internal",
		}})
		return
	}
	writeJSON(w, statusFor(de), errorResponse{Error: errorBody{
		Kind:    string(de.Kind),
		Message: de.Message,
		Key:     de.Key(),
		From:    string(de.From),
		To:      string(de.To),
	}})
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errorBody{
		Kind:    "unauthenticated",
		Message: message,
		Key:     "auth.required",
	}})
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errorBody{
		Kind:    "rate_limited",
		Message: "too many requests",
		Key:     "rate.limited",
	}})
}
