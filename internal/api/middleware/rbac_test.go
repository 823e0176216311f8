package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

func withActor(actor *domain.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor != nil {
			c.Request = c.Request.WithContext(WithActor(c.Request.Context(), *actor))
		}
		c.Next()
	}
}

func TestRequireCargo(t *testing.T) {
	tests := []struct {
		name   string
		actor  *domain.Actor
		status int
	}{
		{"allowed cargo", &domain.Actor{ID: "c", Cargo: domain.CargoCoordAssessoria}, http.StatusOK},
		{"admin always", &domain.Actor{ID: "a", Cargo: domain.CargoAdmin}, http.StatusOK},
		{"other cargo", &domain.Actor{ID: "o", Cargo: domain.CargoOperacionalObras}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandler(), withActor(tt.actor),
				RequireCargo("refresh order status", domain.CargoDiretor, domain.CargoCoordAssessoria))
			router.POST("/refresh", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/refresh", nil))
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				require.Equal(t, []any{"diretor", "coord_assessoria"}, body.Params["allowed_cargos"])
			}
		})
	}
}

func TestStoreTimeout(t *testing.T) {
	router := gin.New()
	router.Use(StoreTimeout(50 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		<-c.Request.Context().Done()
		require.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	disabled := gin.New()
	disabled.Use(StoreTimeout(0))
	disabled.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		require.False(t, ok)
		c.Status(http.StatusOK)
	})
	w = httptest.NewRecorder()
	disabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
	require.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, "rid-1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Len(t, w.Body.String(), 36)
}
