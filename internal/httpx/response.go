package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	masterdata "scalesync/internal/masterdata/domain"
	telemetry "scalesync/internal/telemetry/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondJSON writes data as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes err with the given status code.
func RespondError(w http.ResponseWriter, status int, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	RespondErrorString(w, status, message)
}

// RespondErrorString writes message with the given status code.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, telemetry.ErrValidation),
		errors.Is(err, telemetry.ErrInvalidWindow),
		errors.Is(err, telemetry.ErrUnknownResolution):
		return http.StatusBadRequest
	case errors.Is(err, masterdata.ErrScaleNotFound):
		return http.StatusNotFound
	case errors.Is(err, telemetry.ErrUpstreamFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err with its mapped status. Server side failures are logged;
// their detail is not echoed to the client.
func Fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		}
		RespondErrorString(w, status, http.StatusText(status))
		return
	}
	RespondError(w, status, err)
}
