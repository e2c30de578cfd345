package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"carrental/internal/app/services/auth"
	"carrental/internal/domain/shared/errkind"
)

type envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errkind.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errkind.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errkind.ErrInvalidState),
		errors.Is(err, errkind.ErrConflict),
		errors.Is(err, errkind.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, errkind.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errkind.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errkind.ErrPayment):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondError writes the error envelope. Internal failures are logged and
// their text is not echoed to the client.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	kind := errkind.Of(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", "path", c.FullPath(), "kind", kind, "error", err)
		}
		message = http.StatusText(status)
	}
	c.JSON(status, envelope{Success: false, Message: message, Error: &errorBody{Kind: kind, Message: message}})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, envelope{
		Success: false,
		Message: "invalid request body",
		Error:   &errorBody{Kind: "ValidationError", Message: err.Error()},
	})
}
