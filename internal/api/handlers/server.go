// Package handlers serves the workflow engine over HTTP.
//
// Handlers bind and translate; every rule lives in the engine. Errors are
// added with c.Error and rendered by middleware.ErrorHandler.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/middleware"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/notification"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// Pinger reports store reachability for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	engine       *workflow.Engine
	inbox        notification.Inbox
	pinger       Pinger
	refreshCargo []domain.Cargo
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Engine *workflow.Engine
	Inbox  notification.Inbox
	// Pinger is nil in memory mode; readiness then always reports ok.
	Pinger Pinger
	// RefreshCargos may force a status recompute. Admin always may.
	RefreshCargos []domain.Cargo
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	cargos := deps.RefreshCargos
	if len(cargos) == 0 {
		cargos = domain.DefaultApproverCargos
	}
	return &Server{
		engine:       deps.Engine,
		inbox:        deps.Inbox,
		pinger:       deps.Pinger,
		refreshCargo: cargos,
	}
}

// RegisterPublic mounts the unauthenticated routes.
func (s *Server) RegisterPublic(r gin.IRoutes) {
	r.GET("/health/live", s.GetLiveness)
	r.GET("/health/ready", s.GetReadiness)
}

// RegisterProtected mounts the routes that need an authenticated actor.
func (s *Server) RegisterProtected(r gin.IRoutes) {
	r.POST("/orders", s.OpenOrder)
	r.GET("/orders/:order_id", s.GetOrder)
	r.GET("/orders/:order_id/workflow", s.GetUnifiedWorkflow)
	r.GET("/orders/:order_id/situation", s.GetSituationalStatus)
	r.POST("/orders/:order_id/refresh",
		middleware.RequireCargo("refresh order status", s.refreshCargo...), s.RefreshOrderStatus)
	r.POST("/orders/:order_id/delegations", s.Delegate)
	r.GET("/dashboard", s.GetDashboard)

	r.POST("/steps/:step_id/transitions", s.TransitionStep)
	r.GET("/steps/:step_id/addenda", s.ListAddenda)
	r.POST("/steps/:step_id/addenda", s.AddAddendum)

	r.PATCH("/delegations/:delegation_id", s.UpdateDelegationStatus)

	r.GET("/order-types", s.ListOrderTypes)
	r.GET("/order-types/:code/handoffs", s.ListHandoffs)

	r.GET("/notifications", s.ListNotifications)
	r.GET("/notifications/unread-count", s.GetUnreadCount)
	r.POST("/notifications/:notification_id/read", s.MarkNotificationRead)
	r.POST("/notifications/read-all", s.MarkAllNotificationsRead)
}

// actorFromCtx returns the authenticated actor, recording a 401 when the
// request carries none.
func actorFromCtx(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c.Request.Context())
	if !ok {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeAuthFailed, "not authenticated"))
		return domain.Actor{}, false
	}
	return actor, true
}

// bindJSON decodes the body into req, recording a 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "malformed request body", http.StatusBadRequest))
		return false
	}
	return true
}

func defaultPagination(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
