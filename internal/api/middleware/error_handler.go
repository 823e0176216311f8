// Package middleware provides the HTTP middleware chain: request ids,
// actor authentication, contract validation and error rendering.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]any         `json:"params,omitempty"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
}

// retryAfterSeconds is advertised on responses a client may simply repeat.
const retryAfterSeconds = "1"

// ErrorHandler renders the last error added via c.Error().
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		// A request that ran out of its store budget outside the engine.
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.StoreUnavailableError("request", err)
		}

		log := logger.FromContext(c.Request.Context())
		appErr, ok := apperrors.As(err)
		if !ok {
			log.Error("Unhandled request error", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Code:    "INTERNAL_ERROR",
				Message: "An internal error occurred",
			})
			return
		}

		status := apperrors.StatusOf(appErr)
		fields := []zap.Field{zap.String("code", appErr.Code), zap.Int("status", status), zap.Error(appErr.Err)}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error(appErr.Message, fields...)
		case status == http.StatusUnauthorized || status == http.StatusNotFound:
			log.Debug(appErr.Message, fields...)
		default:
			log.Warn(appErr.Message, fields...)
		}
		if apperrors.Retryable(appErr) {
			c.Header("Retry-After", retryAfterSeconds)
		}
		c.JSON(status, ErrorResponse{
			Code:        appErr.Code,
			Message:     appErr.Message,
			Params:      appErr.Params,
			FieldErrors: appErr.FieldErrors,
		})
	}
}
