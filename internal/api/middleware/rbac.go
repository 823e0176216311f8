package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// RequireCargo gates a route on the caller's cargo. Admin passes every
// gate. Mount it after JWTAuth.
func RequireCargo(action string, cargos ...domain.Cargo) gin.HandlerFunc {
	allowed := make(map[domain.Cargo]struct{}, len(cargos)+1)
	allowed[domain.CargoAdmin] = struct{}{}
	names := make([]string, 0, len(cargos))
	for _, cargo := range cargos {
		allowed[cargo] = struct{}{}
		names = append(names, string(cargo))
	}

	return func(c *gin.Context) {
		actor, ok := ActorFrom(c.Request.Context())
		if !ok {
			abortWith(c, apperrors.Unauthorized(apperrors.CodeAuthFailed, "not authenticated"))
			return
		}
		if _, ok := allowed[actor.Cargo]; !ok {
			logger.FromContext(c.Request.Context()).Info("cargo gate denied " + action)
			abortWith(c, apperrors.AuthorizationError(actor.ID, action).
				WithParams(map[string]any{"allowed_cargos": names}))
			return
		}
		c.Next()
	}
}
