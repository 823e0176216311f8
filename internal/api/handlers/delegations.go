package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// DelegateBody is the body of POST /orders/{id}/delegations.
type DelegateBody struct {
	StepIDs     []string   `json:"step_ids"`
	DelegateID  string     `json:"delegate_id"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
	Deadline    *time.Time `json:"deadline"`
}

// DelegationStatusBody is the body of PATCH /delegations/{id}.
type DelegationStatusBody struct {
	Status domain.DelegationStatus `json:"status"`
}

// Delegate handles POST /orders/{order_id}/delegations.
func (s *Server) Delegate(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var body DelegateBody
	if !bindJSON(c, &body) {
		return
	}
	d, err := s.engine.Delegate(c.Request.Context(), workflow.DelegateRequest{
		OrderID:     c.Param("order_id"),
		StepIDs:     body.StepIDs,
		DelegateID:  body.DelegateID,
		Description: body.Description,
		Notes:       body.Notes,
		Deadline:    body.Deadline,
		Actor:       actor,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// UpdateDelegationStatus handles PATCH /delegations/{delegation_id}.
func (s *Server) UpdateDelegationStatus(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var body DelegationStatusBody
	if !bindJSON(c, &body) {
		return
	}
	if !body.Status.Valid() {
		_ = c.Error(apperrors.ValidationError("unknown delegation status", "status"))
		return
	}
	d, err := s.engine.UpdateDelegationStatus(c.Request.Context(), c.Param("delegation_id"), body.Status, actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}
