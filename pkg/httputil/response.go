package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
	"github.com/wangyz12/backend-admin/pkg/logger"
	"github.com/wangyz12/backend-admin/pkg/validator"
)

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// MessageResponse is the payload for operations that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized error response based on the error type.
// It prefers the request-scoped logger from context (set by the RequestLogger
// middleware) over the fallback logger. Internal errors are logged in full and
// surfaced to the caller only as a generic failure.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status == http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		resp := &ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID}
		if appErr.Field != "" {
			resp.Fields = map[string]string{appErr.Field: fieldMessage(appErr)}
		}
		WriteJSON(w, appErr.Status, Response{Error: resp})
		return
	}

	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	for _, m := range sentinelErrors {
		if errors.Is(err, m.target) {
			status, code, message = apperrors.HTTPStatus(err), m.code, m.message
			if message == "" {
				message = err.Error()
			}
			break
		}
	}

	if status == http.StatusInternalServerError {
		logInternal(l, r, err)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

// sentinelErrors maps bare sentinel errors to their public code and message.
// An empty message echoes the error text, which callers build for display.
var sentinelErrors = []struct {
	target  error
	code    string
	message string
}{
	{apperrors.ErrNotFound, "NOT_FOUND", "resource not found"},
	{apperrors.ErrAlreadyExists, "ALREADY_EXISTS", "resource already exists"},
	{apperrors.ErrInvalidInput, "INVALID_INPUT", ""},
	{apperrors.ErrInvalidCredential, "INVALID_CREDENTIAL", apperrors.InvalidCredentialMessage},
	{apperrors.ErrNoCredential, "NO_CREDENTIAL", "authentication required"},
	{apperrors.ErrUnauthorized, "UNAUTHORIZED", "unauthorized"},
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

func fieldMessage(appErr *apperrors.AppError) string {
	if appErr.Code == "ALREADY_EXISTS" {
		return "already exists"
	}
	return appErr.Message
}

// ParseUUID parses a path parameter holding a user ID. On failure it answers
// 400 INVALID_PARAMETER and reports false so the handler returns at once.
func ParseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err == nil {
		return id, true
	}
	WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
		Code:      "INVALID_PARAMETER",
		Message:   "invalid UUID: " + param,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}})
	return uuid.Nil, false
}
