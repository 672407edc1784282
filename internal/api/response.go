package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zapponejosh/panchaanga-api/internal/calendar"
	"github.com/zapponejosh/panchaanga-api/internal/logger"
)

// Response is the envelope of every JSON response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, status int, message string, code ...string) error {
	errInfo := ErrorInfo{
		Message: message,
	}
	if len(code) > 0 {
		errInfo.Code = code[0]
	}

	return WriteJSON(w, status, Response{
		Success: false,
		Error:   &errInfo,
	})
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string, code ...string) error {
	if len(code) == 0 {
		code = []string{"NOT_FOUND"}
	}
	return WriteError(w, http.StatusNotFound, message, code...)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, code ...string) error {
	if len(code) == 0 {
		code = []string{"BAD_REQUEST"}
	}
	return WriteError(w, http.StatusBadRequest, message, code...)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}

// writeServiceError maps calendar errors onto responses. Anything
// unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, calendar.ErrUnknownCity):
		WriteNotFound(w, err.Error(), "UNKNOWN_CITY")
	case errors.Is(err, calendar.ErrUnknownFestival):
		WriteNotFound(w, err.Error(), "UNKNOWN_FESTIVAL")
	case errors.Is(err, calendar.ErrYearOutOfRange):
		WriteBadRequest(w, err.Error(), "YEAR_OUT_OF_RANGE")
	case errors.Is(err, calendar.ErrBadDate):
		WriteBadRequest(w, err.Error(), "BAD_DATE")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, "Request cancelled", "CANCELLED")
	default:
		logger.Error(r.Context(), "Calendar request failed", err)
		WriteInternalError(w, "Failed to compute calendar")
	}
}
