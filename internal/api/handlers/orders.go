package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// OpenOrderResponse is the body of POST /orders.
type OpenOrderResponse struct {
	Order     *domain.Order `json:"order"`
	FirstStep *domain.Step  `json:"first_step"`
}

// SituationResponse is the body of GET /orders/{id}/situation.
type SituationResponse struct {
	OrderID   string                     `json:"order_id"`
	Situation workflow.SituationalStatus `json:"situation"`
}

// RefreshResponse is the body of POST /orders/{id}/refresh.
type RefreshResponse struct {
	Order   *domain.Order `json:"order"`
	Changed bool          `json:"changed"`
}

// DashboardResponse is the body of GET /dashboard.
type DashboardResponse struct {
	Items []workflow.DashboardRow `json:"items"`
}

// OpenOrder handles POST /orders.
func (s *Server) OpenOrder(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var req workflow.OpenOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor

	order, step, err := s.engine.OpenOrder(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, OpenOrderResponse{Order: order, FirstStep: step})
}

// GetOrder handles GET /orders/{order_id}.
func (s *Server) GetOrder(c *gin.Context) {
	detail, err := s.engine.GetOrderDetail(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GetUnifiedWorkflow handles GET /orders/{order_id}/workflow.
func (s *Server) GetUnifiedWorkflow(c *gin.Context) {
	view, err := s.engine.GetUnifiedWorkflow(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetSituationalStatus handles GET /orders/{order_id}/situation.
func (s *Server) GetSituationalStatus(c *gin.Context) {
	orderID := c.Param("order_id")
	situation, err := s.engine.GetSituationalStatus(c.Request.Context(), orderID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SituationResponse{OrderID: orderID, Situation: situation})
}

// RefreshOrderStatus handles POST /orders/{order_id}/refresh.
func (s *Server) RefreshOrderStatus(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	order, changed, err := s.engine.RefreshOrderStatus(c.Request.Context(), c.Param("order_id"), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, RefreshResponse{Order: order, Changed: changed})
}

// GetDashboard handles GET /dashboard. Status filters accept legacy labels.
func (s *Server) GetDashboard(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	filter := workflow.OrderFilter{
		Sector:        c.Query("sector"),
		ResponsibleID: c.Query("responsible_id"),
		TypeCode:      c.Query("type_code"),
	}
	for _, raw := range c.QueryArray("status") {
		st, err := domain.ParseOrderStatus(raw)
		if err != nil {
			_ = c.Error(apperrors.ValidationError(err.Error(), "status"))
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			_ = c.Error(apperrors.ValidationError("limit must be a positive integer", "limit"))
			return
		}
		filter.Limit = limit
	}

	rows, err := s.engine.Dashboard(c.Request.Context(), filter, actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if rows == nil {
		rows = []workflow.DashboardRow{}
	}
	c.JSON(http.StatusOK, DashboardResponse{Items: rows})
}
