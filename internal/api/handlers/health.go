package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// Health is the body of the probe endpoints.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, Health{Status: "ok"})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusOK, Health{Status: "ok", Checks: map[string]string{"store": "memory"}})
		return
	}
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		logger.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, Health{
			Status: "degraded",
			Checks: map[string]string{"database": "error"},
		})
		return
	}
	c.JSON(http.StatusOK, Health{Status: "ok", Checks: map[string]string{"database": "ok"}})
}
