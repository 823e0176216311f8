package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error codes are stable identifiers for clients. Messages are English and
// meant for logs; clients translate from code + params.

// Workflow error codes.
const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeStepNotCompleted       = "STEP_NOT_COMPLETED"
	CodeEmptyContent           = "EMPTY_CONTENT"
	CodeHierarchyCycle         = "HIERARCHY_CYCLE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeStoreUnavailable       = "STORE_UNAVAILABLE"
	CodeMissingDocumentation   = "MISSING_DOCUMENTATION"
	CodeForbidden              = "FORBIDDEN"
	CodeStepOrdemConflict      = "STEP_ORDEM_CONFLICT"
)

// Lookup error codes.
const (
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeStepNotFound         = "STEP_NOT_FOUND"
	CodeDelegationNotFound   = "DELEGATION_NOT_FOUND"
	CodeOrderTypeNotFound    = "ORDER_TYPE_NOT_FOUND"
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Request error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
)

// ValidationError reports missing or malformed input. fields names the
// offending keys, sorted for stable output.
func ValidationError(message string, fields ...string) *AppError {
	e := &AppError{
		Code:       CodeValidationFailed,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
	if len(fields) == 0 {
		return e
	}
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	fe := make([]FieldError, 0, len(sorted))
	for _, f := range sorted {
		fe = append(fe, FieldError{Field: f, Code: "REQUIRED"})
	}
	return e.WithFieldErrors(fe).WithParams(map[string]any{"fields": sorted})
}

// InvalidTransitionError reports a status edge the state machine does not allow.
func InvalidTransitionError(from, to string) *AppError {
	return (&AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		HTTPStatus: http.StatusConflict,
		Err:        ErrConflict,
	}).WithParams(map[string]any{"from": from, "to": to})
}

// StepNotCompletedError reports an operation that needs a completed step.
func StepNotCompletedError(stepID, status string) *AppError {
	return (&AppError{
		Code:       CodeStepNotCompleted,
		Message:    "step is not completed",
		HTTPStatus: http.StatusConflict,
		Err:        ErrConflict,
	}).WithParams(map[string]any{"step_id": stepID, "status": status})
}

// EmptyContentError reports blank free text.
func EmptyContentError(field string) *AppError {
	return (&AppError{
		Code:       CodeEmptyContent,
		Message:    "content must not be blank",
		HTTPStatus: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}).WithParams(map[string]any{"field": field})
}

// HierarchyCycleError reports a parent chain that revisits an order or is too deep.
func HierarchyCycleError(orderID string, hops int) *AppError {
	return (&AppError{
		Code:       CodeHierarchyCycle,
		Message:    "order hierarchy contains a cycle or exceeds the maximum depth",
		HTTPStatus: http.StatusInternalServerError,
		Err:        ErrInternal,
	}).WithParams(map[string]any{"order_id": orderID, "hops": hops})
}

// ConcurrentModificationError reports a lost optimistic-concurrency race.
func ConcurrentModificationError(resource, id string, expectedVersion int64) *AppError {
	return (&AppError{
		Code:       CodeConcurrentModification,
		Message:    resource + " was modified concurrently",
		HTTPStatus: http.StatusConflict,
		Err:        ErrConflict,
	}).WithParams(map[string]any{"resource": resource, "id": id, "expected_version": expectedVersion})
}

// StoreUnavailableError reports a timed-out or unreachable store call.
func StoreUnavailableError(op string, err error) *AppError {
	return (&AppError{
		Code:       CodeStoreUnavailable,
		Message:    "store unavailable during " + op,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        fmt.Errorf("%w: %v", ErrServiceUnavail, err),
	}).WithParams(map[string]any{"operation": op})
}

// MissingDocumentationError lists the evidence keys that block an approval.
func MissingDocumentationError(missing []string) *AppError {
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	return (&AppError{
		Code:       CodeMissingDocumentation,
		Message:    "missing required documents: " + strings.Join(sorted, ", "),
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        ErrBadRequest,
	}).WithParams(map[string]any{"missing": sorted})
}

// AuthorizationError reports an actor without the capability for an action.
func AuthorizationError(actorID, action string) *AppError {
	return (&AppError{
		Code:       CodeForbidden,
		Message:    "actor is not allowed to " + action,
		HTTPStatus: http.StatusForbidden,
		Err:        ErrForbidden,
	}).WithParams(map[string]any{"actor": actorID, "action": action})
}

// NotFoundError wraps ErrNotFound with a resource-specific code.
func NotFoundError(code, resource, id string) *AppError {
	return (&AppError{
		Code:       code,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Err:        ErrNotFound,
	}).WithParams(map[string]any{"id": id})
}

// StepOrdemConflictError reports a step insert that would break the dense
// 1..N ordem sequence of an order.
func StepOrdemConflictError(orderID string, ordem int) *AppError {
	return (&AppError{
		Code:       CodeStepOrdemConflict,
		Message:    "step ordem must extend the order's sequence by one",
		HTTPStatus: http.StatusConflict,
		Err:        ErrConflict,
	}).WithParams(map[string]any{"order_id": orderID, "ordem": ordem})
}
