package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/openapi"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// Codes the contract check renders itself.
const (
	CodeContractRouteInvalid    = "OPENAPI_ROUTE_INVALID"
	CodeContractResponseInvalid = "OPENAPI_RESPONSE_INVALID"
)

// ValidatorOption configures the OpenAPI validator.
type ValidatorOption func(*contractValidator)

// WithResponseValidation also checks handler responses against the
// contract, replacing non-conforming ones with a 500.
func WithResponseValidation() ValidatorOption {
	return func(v *contractValidator) { v.responses = true }
}

// MustOpenAPIValidator is NewOpenAPIValidator for router setup; it panics
// when the embedded contract does not load.
func MustOpenAPIValidator(basePath string, opts ...ValidatorOption) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath, opts...)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator checks requests under basePath against the embedded
// contract, whose paths are relative to basePath. Requests outside
// basePath or the contract pass through untouched.
func NewOpenAPIValidator(basePath string, opts ...ValidatorOption) (gin.HandlerFunc, error) {
	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	v := &contractValidator{
		router: router,
		base:   "/" + strings.Trim(strings.TrimSpace(basePath), "/"),
		filter: &openapi3filter.Options{
			// JWTAuth authenticates; the contract only documents the scheme.
			AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
		},
	}
	if v.base == "/" {
		v.base = ""
	}
	for _, opt := range opts {
		opt(v)
	}
	return v.handle, nil
}

type contractValidator struct {
	router    routers.Router
	base      string
	filter    *openapi3filter.Options
	responses bool
}

func (v *contractValidator) handle(c *gin.Context) {
	path, ok := contractPath(v.base, c.Request.URL.Path)
	if !ok {
		c.Next()
		return
	}

	// Validate a shallow copy addressed by contract path; the handler
	// still sees the original URL.
	req := *c.Request
	u := *req.URL
	u.Path, u.RawPath = path, ""
	req.URL = &u

	route, params, err := v.router.FindRoute(&req)
	if err != nil {
		if routeMiss(err) {
			c.Next()
			return
		}
		abortWithContractError(c, http.StatusBadRequest, CodeContractRouteInvalid, err.Error(), nil)
		return
	}

	input := &openapi3filter.RequestValidationInput{Request: &req, PathParams: params, Route: route, Options: v.filter}
	err = openapi3filter.ValidateRequest(c.Request.Context(), input)
	// Validation drains and replaces the body.
	c.Request.Body = req.Body
	if err != nil {
		abortWithContractError(c, http.StatusBadRequest, apperrors.CodeValidationFailed,
			"request does not conform to OpenAPI contract", requestFieldErrors(err))
		return
	}

	if !v.responses {
		c.Next()
		return
	}
	v.checkResponse(c, input)
}

func (v *contractValidator) checkResponse(c *gin.Context, input *openapi3filter.RequestValidationInput) {
	buf := newResponseBuffer(c.Writer)
	c.Writer = buf
	c.Next()

	out := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 buf.Status(),
		Header:                 buf.Header().Clone(),
		Options:                v.filter,
	}
	if buf.Size() > 0 {
		out.SetBodyBytes(buf.body.Bytes())
	}

	log := logger.FromContext(c.Request.Context())
	if err := openapi3filter.ValidateResponse(c.Request.Context(), out); err != nil {
		log.Error("Response breaks the OpenAPI contract",
			zap.String("route", input.Route.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", buf.Status()),
			zap.Error(err),
		)
		buf.replaceJSON(http.StatusInternalServerError, ErrorResponse{
			Code:    CodeContractResponseInvalid,
			Message: "response does not conform to OpenAPI contract",
		})
	}
	if err := buf.flush(); err != nil {
		log.Warn("Writing buffered response failed", zap.Error(err))
	}
}

// contractPath maps a request path to the contract's path space.
func contractPath(base, path string) (string, bool) {
	switch {
	case base == "":
		return path, true
	case path == base:
		return "/", true
	case strings.HasPrefix(path, base+"/"):
		return strings.TrimPrefix(path, base), true
	}
	return "", false
}

// routeMiss reports errors for requests the contract does not describe;
// gin answers those with its own 404 or 405.
func routeMiss(err error) bool {
	var routeErr *routers.RouteError
	if errors.As(err, &routeErr) {
		return routeErr.Reason == routers.ErrPathNotFound.Error() ||
			routeErr.Reason == routers.ErrMethodNotAllowed.Error()
	}
	return errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed)
}

// requestFieldErrors names the parameter or body field a request
// validation error points at.
func requestFieldErrors(err error) []apperrors.FieldError {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return nil
	}
	fe := apperrors.FieldError{Field: "body", Code: apperrors.CodeInvalidRequestField, Message: reqErr.Reason}
	if reqErr.Parameter != nil {
		fe.Field = reqErr.Parameter.Name
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			fe.Field = strings.Join(ptr, ".")
		}
		fe.Message = schemaErr.Reason
	}
	return []apperrors.FieldError{fe}
}

func abortWithContractError(c *gin.Context, status int, code, message string, fields []apperrors.FieldError) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: message, FieldErrors: fields})
}
