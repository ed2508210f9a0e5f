package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/videostream/backend/internal/logging"
	"github.com/videostream/backend/internal/query"
	"github.com/videostream/backend/internal/repositories"
)

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// apiError is an error that already knows its HTTP status and client-facing message.
type apiError struct {
	Status  int
	Message string
}

func (e apiError) Error() string {
	return e.Message
}

func badRequest(message string) apiError   { return apiError{Status: http.StatusBadRequest, Message: message} }
func unauthorized(message string) apiError { return apiError{Status: http.StatusUnauthorized, Message: message} }
func forbidden(message string) apiError    { return apiError{Status: http.StatusForbidden, Message: message} }
func notFound(message string) apiError     { return apiError{Status: http.StatusNotFound, Message: message} }
func conflict(message string) apiError     { return apiError{Status: http.StatusConflict, Message: message} }
func tooManyRequests(message string) apiError {
	return apiError{Status: http.StatusTooManyRequests, Message: message}
}
func internalError(message string) apiError {
	return apiError{Status: http.StatusInternalServerError, Message: message}
}

// storeError translates repository sentinels into client errors, naming the missing entity.
func storeError(err error, entity string) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return notFound(entity + " not found")
	case errors.Is(err, repositories.ErrConflict):
		return conflict(entity + " already exists")
	default:
		return err
	}
}

func respondSuccess(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	respondJSON(ctx, w, status, envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// respondError writes the error envelope. Errors that are not apiErrors are logged and
// reported as a generic 500.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr apiError
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, query.ErrInvalidParams):
		apiErr = badRequest(err.Error())
	default:
		logging.FromContext(ctx).Error("unhandled error", "error", err)
		apiErr = internalError("Internal server error")
	}
	respondJSON(ctx, w, apiErr.Status, errorEnvelope{StatusCode: apiErr.Status, Message: apiErr.Message})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
