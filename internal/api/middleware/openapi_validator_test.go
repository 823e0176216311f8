package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

func TestContractPath(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		path   string
		want   string
		inside bool
	}{
		{"strip prefix", "/api/v1", "/api/v1/orders/o-1", "/orders/o-1", true},
		{"base itself", "/api/v1", "/api/v1", "/", true},
		{"outside base", "/api/v1", "/debug/loglevel", "", false},
		{"prefix lookalike", "/api/v1", "/api/v10/orders", "", false},
		{"empty base", "", "/orders", "/orders", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, inside := contractPath(tt.base, tt.path)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.inside, inside)
		})
	}
}

func newValidatedRouter(opts ...ValidatorOption) *gin.Engine {
	router := gin.New()
	router.Use(MustOpenAPIValidator("/api/v1", opts...), ErrorHandler())
	return router
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOpenAPIValidatorRejectsInvalidTransitionRequest(t *testing.T) {
	router := newValidatedRouter()
	router.POST("/api/v1/steps/:step_id/transitions", func(c *gin.Context) {
		t.Fatal("handler must not run")
	})

	w := doJSON(router, http.MethodPost, "/api/v1/steps/s-1/transitions", `{"comment":"no target"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, apperrors.CodeValidationFailed, body.Code)
	require.NotEmpty(t, body.FieldErrors)
}

func TestOpenAPIValidatorRejectsUnknownDelegationStatus(t *testing.T) {
	router := newValidatedRouter()
	router.PATCH("/api/v1/delegations/:delegation_id", func(c *gin.Context) {
		t.Fatal("handler must not run")
	})

	w := doJSON(router, http.MethodPatch, "/api/v1/delegations/d-1", `{"status":"archived"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenAPIValidatorAcceptsValidAddendumRequest(t *testing.T) {
	router := newValidatedRouter(WithResponseValidation())
	router.POST("/api/v1/steps/:step_id/addenda", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{
			"id":         "a-1",
			"step_id":    c.Param("step_id"),
			"field_key":  "observacoes",
			"content":    "ok",
			"author_id":  "u-1",
			"created_at": "2026-03-02T09:00:00Z",
		})
	})

	w := doJSON(router, http.MethodPost, "/api/v1/steps/s-1/addenda", `{"field_key":"observacoes","content":"ok"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestOpenAPIValidatorLeavesBodyForHandler(t *testing.T) {
	router := newValidatedRouter()
	router.POST("/api/v1/steps/:step_id/addenda", func(c *gin.Context) {
		var in struct {
			Content string `json:"content"`
		}
		require.NoError(t, c.ShouldBindJSON(&in))
		require.Equal(t, "/api/v1/steps/s-1/addenda", c.Request.URL.Path)
		c.String(http.StatusOK, in.Content)
	})

	w := doJSON(router, http.MethodPost, "/api/v1/steps/s-1/addenda", `{"field_key":"observacoes","content":"medição conferida"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "medição conferida", w.Body.String())
}

func TestOpenAPIValidatorPassesUndeclaredMethod(t *testing.T) {
	router := newValidatedRouter()
	router.DELETE("/api/v1/orders/:order_id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := doJSON(router, http.MethodDelete, "/api/v1/orders/o-1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestOpenAPIValidatorRejectsNonConformingResponse(t *testing.T) {
	router := newValidatedRouter(WithResponseValidation())
	router.GET("/api/v1/notifications/unread-count", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": "many"})
	})

	w := doJSON(router, http.MethodGet, "/api/v1/notifications/unread-count", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "OPENAPI_RESPONSE_INVALID")
}

func TestOpenAPIValidatorValidatesErrorResponses(t *testing.T) {
	router := newValidatedRouter(WithResponseValidation())
	router.GET("/api/v1/orders/:order_id", func(c *gin.Context) {
		_ = c.Error(apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", c.Param("order_id")))
	})

	w := doJSON(router, http.MethodGet, "/api/v1/orders/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), apperrors.CodeOrderNotFound)
}

func TestOpenAPIValidatorPassesUnknownPaths(t *testing.T) {
	router := newValidatedRouter()
	router.GET("/debug/loglevel", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doJSON(router, http.MethodGet, "/debug/loglevel", "")
	require.Equal(t, http.StatusOK, w.Code)
}
