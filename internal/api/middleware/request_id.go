package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID contextKey = "request_id"
	ctxKeyActor     contextKey = "actor"
)

// maxRequestIDLen bounds a caller-supplied id before it reaches logs.
const maxRequestIDLen = 64

// RequestID echoes the caller's X-Request-ID, or mints a UUIDv7, and tags
// the request logger with it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.Must(uuid.NewV7()).String()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)

		ctx := context.WithValue(c.Request.Context(), ctxKeyRequestID, rid)
		ctx = logger.WithContext(ctx, zap.String("request_id", rid))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID returns the id RequestID stored, or "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithActor stores the authenticated actor in ctx and tags the request
// logger with who is acting.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	ctx = logger.WithContext(ctx, zap.String("actor_id", actor.ID), zap.String("cargo", string(actor.Cargo)))
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(domain.Actor)
	return a, ok && a.ID != ""
}

