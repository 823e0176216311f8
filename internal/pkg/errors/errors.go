// Package errors is the error taxonomy shared by the workflow engine, the
// stores, the background jobs and the HTTP layer.
//
// Every failure a client can see is an *AppError carrying a stable code,
// an HTTP status and optional params. The sentinels classify errors so
// callers can branch with errors.Is without knowing the code.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// Error classes. AppErrors wrap one of these.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is an error a client can act on.
type AppError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	HTTPStatus  int            `json:"-"`
	Params      map[string]any `json:"params,omitempty"`
	FieldErrors []FieldError   `json:"field_errors,omitempty"`
	Err         error          `json:"-"`
}

// FieldError points at one offending request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParams merges params into the error's params.
func (e *AppError) WithParams(params map[string]any) *AppError {
	if e == nil || len(params) == 0 {
		return e
	}
	if e.Params == nil {
		e.Params = make(map[string]any, len(params))
	}
	maps.Copy(e.Params, params)
	return e
}

// WithFieldErrors replaces the field errors.
func (e *AppError) WithFieldErrors(fieldErrors []FieldError) *AppError {
	if e == nil || len(fieldErrors) == 0 {
		return e
	}
	e.FieldErrors = fieldErrors
	return e
}

// Wrap classifies err under code. The class sentinel follows status so
// errors.Is keeps working through the wrap.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	if err == nil {
		err = classOf(httpStatus)
	} else if class := classOf(httpStatus); !errors.Is(err, class) {
		err = fmt.Errorf("%w: %w", class, err)
	}
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Unauthorized is a 401 for a missing or rejected credential.
func Unauthorized(code, message string) *AppError {
	return Wrap(nil, code, message, http.StatusUnauthorized)
}

// Conflict is a 409 for a write that lost against current state.
func Conflict(code, message string) *AppError {
	return Wrap(nil, code, message, http.StatusConflict)
}

func classOf(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusConflict:
		return ErrConflict
	case http.StatusServiceUnavailable:
		return ErrServiceUnavail
	}
	if status >= http.StatusInternalServerError {
		return ErrInternal
	}
	return ErrBadRequest
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// CodeOf returns err's AppError code, or "" for plain errors.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// StatusOf returns the HTTP status for err. Plain errors are 500.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the same call may succeed later without any
// change to its input: the store was unreachable or a concurrent writer
// won the version check.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavail) || IsCode(err, CodeConcurrentModification)
}
