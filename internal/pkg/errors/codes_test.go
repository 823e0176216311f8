package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTaxonomyStatusAndSentinels(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
		sentinel   error
	}{
		{"validation", ValidationError("missing", "b", "a"), CodeValidationFailed, http.StatusBadRequest, ErrBadRequest},
		{"invalid transition", InvalidTransitionError("pending", "completed"), CodeInvalidTransition, http.StatusConflict, ErrConflict},
		{"step not completed", StepNotCompletedError("s1", "in_progress"), CodeStepNotCompleted, http.StatusConflict, ErrConflict},
		{"empty content", EmptyContentError("content"), CodeEmptyContent, http.StatusBadRequest, ErrBadRequest},
		{"hierarchy cycle", HierarchyCycleError("o1", 3), CodeHierarchyCycle, http.StatusInternalServerError, ErrInternal},
		{"concurrent modification", ConcurrentModificationError("step", "s1", 2), CodeConcurrentModification, http.StatusConflict, ErrConflict},
		{"store unavailable", StoreUnavailableError("get step", context.DeadlineExceeded), CodeStoreUnavailable, http.StatusServiceUnavailable, ErrServiceUnavail},
		{"missing documentation", MissingDocumentationError([]string{"rrt"}), CodeMissingDocumentation, http.StatusUnprocessableEntity, ErrBadRequest},
		{"authorization", AuthorizationError("u1", "approve step"), CodeForbidden, http.StatusForbidden, ErrForbidden},
		{"not found", NotFoundError(CodeOrderNotFound, "order", "o1"), CodeOrderNotFound, http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if !IsCode(fmt.Errorf("wrapped: %w", tt.err), tt.wantCode) {
				t.Errorf("IsCode(wrapped, %q) = false", tt.wantCode)
			}
		})
	}
}

func TestMissingDocumentationErrorSortsKeys(t *testing.T) {
	err := MissingDocumentationError([]string{"rrt", "art"})
	got, ok := err.Params["missing"].([]string)
	if !ok {
		t.Fatalf("params[missing] = %#v, want []string", err.Params["missing"])
	}
	if len(got) != 2 || got[0] != "art" || got[1] != "rrt" {
		t.Errorf("missing = %v, want [art rrt]", got)
	}
	if err.Message != "missing required documents: art, rrt" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestValidationErrorFieldErrors(t *testing.T) {
	err := ValidationError("required fields missing", "zeta", "alpha")
	if len(err.FieldErrors) != 2 {
		t.Fatalf("len(FieldErrors) = %d, want 2", len(err.FieldErrors))
	}
	if err.FieldErrors[0].Field != "alpha" {
		t.Errorf("FieldErrors[0].Field = %q, want alpha", err.FieldErrors[0].Field)
	}

	bare := ValidationError("bad input")
	if bare.Params != nil || bare.FieldErrors != nil {
		t.Errorf("bare validation error should carry no params, got %#v", bare.Params)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(EmptyContentError("content")); got != CodeEmptyContent {
		t.Errorf("CodeOf = %q, want %q", got, CodeEmptyContent)
	}
}
