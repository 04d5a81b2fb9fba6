package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if sessionID := c.GetString("sessionId"); sessionID != "" {
		fields["session_id"] = sessionID
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps an error kind to its HTTP status and code.
func FromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		Error(c, http.StatusBadRequest, "validation_error", apperr.Message(err), nil)
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		Error(c, http.StatusUnsupportedMediaType, "unsupported_format", apperr.Message(err), nil)
	case errors.Is(err, apperr.ErrNotFound):
		Error(c, http.StatusNotFound, "not_found", apperr.Message(err), nil)
	case errors.Is(err, apperr.ErrBusy):
		Error(c, http.StatusConflict, "busy", apperr.Message(err), nil)
	case errors.Is(err, apperr.ErrNotReady):
		Error(c, http.StatusConflict, "not_ready", apperr.Message(err), nil)
	case errors.Is(err, apperr.ErrConflict):
		Error(c, http.StatusConflict, "conflict", apperr.Message(err), nil)
	default:
		Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
	}
}
