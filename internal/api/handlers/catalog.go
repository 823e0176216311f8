package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

// OrderTypeList is the body of GET /order-types.
type OrderTypeList struct {
	Items []domain.OrderType `json:"items"`
}

// HandoffList is the body of GET /order-types/{code}/handoffs.
type HandoffList struct {
	TypeCode string                `json:"type_code"`
	Items    []domain.HandoffPoint `json:"items"`
}

// ListOrderTypes handles GET /order-types.
func (s *Server) ListOrderTypes(c *gin.Context) {
	c.JSON(http.StatusOK, OrderTypeList{Items: s.engine.Catalog().Types()})
}

// ListHandoffs handles GET /order-types/{code}/handoffs.
func (s *Server) ListHandoffs(c *gin.Context) {
	code := c.Param("code")
	catalog := s.engine.Catalog()
	if _, ok := catalog.Type(code); !ok {
		_ = c.Error(apperrors.NotFoundError(apperrors.CodeOrderTypeNotFound, "order type", code))
		return
	}
	items := catalog.Handoffs(code)
	if items == nil {
		items = []domain.HandoffPoint{}
	}
	c.JSON(http.StatusOK, HandoffList{TypeCode: code, Items: items})
}
