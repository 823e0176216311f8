package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// TransitionBody is the body of POST /steps/{id}/transitions. Target
// accepts canonical statuses and legacy labels.
type TransitionBody struct {
	Target          string          `json:"target"`
	Payload         domain.StepData `json:"payload"`
	Comment         string          `json:"comment"`
	ExpectedVersion int64           `json:"expected_version"`
}

// AddendumBody is the body of POST /steps/{id}/addenda.
type AddendumBody struct {
	FieldKey string `json:"field_key"`
	Content  string `json:"content"`
}

// AddendumList is the body of GET /steps/{id}/addenda.
type AddendumList struct {
	Items []domain.Addendum `json:"items"`
}

// TransitionStep handles POST /steps/{step_id}/transitions.
func (s *Server) TransitionStep(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var body TransitionBody
	if !bindJSON(c, &body) {
		return
	}
	target, err := domain.ParseStepStatus(body.Target)
	if err != nil {
		_ = c.Error(apperrors.ValidationError(err.Error(), "target"))
		return
	}

	result, err := s.engine.TransitionStep(c.Request.Context(), workflow.TransitionRequest{
		StepID:          c.Param("step_id"),
		Target:          target,
		Actor:           actor,
		Payload:         body.Payload,
		Comment:         body.Comment,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddAddendum handles POST /steps/{step_id}/addenda.
func (s *Server) AddAddendum(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var body AddendumBody
	if !bindJSON(c, &body) {
		return
	}
	a, err := s.engine.AddAddendum(c.Request.Context(), c.Param("step_id"), body.FieldKey, body.Content, actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListAddenda handles GET /steps/{step_id}/addenda, optionally narrowed
// to one field with ?field=.
func (s *Server) ListAddenda(c *gin.Context) {
	stepID := c.Param("step_id")
	var (
		items []domain.Addendum
		err   error
	)
	if field, ok := c.GetQuery("field"); ok {
		items, err = s.engine.ListAddendaForField(c.Request.Context(), stepID, field)
	} else {
		items, err = s.engine.ListAddenda(c.Request.Context(), stepID)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []domain.Addendum{}
	}
	c.JSON(http.StatusOK, AddendumList{Items: items})
}
