package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewUsesDefaultMessage(t *testing.T) {
	err := New(CodeNotFound, "")
	if err.Message() != "resource not found" {
		t.Fatalf("unexpected message: %q", err.Message())
	}
	if err.Error() != "[NOT_FOUND] resource not found" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(CodeUpstreamUnavailable, cause, "map server unreachable")
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if !stdErrors.Is(err, New(CodeUpstreamUnavailable, "other")) {
		t.Fatalf("expected errors with the same code to match")
	}
	if stdErrors.Is(err, New(CodeTimeout, "")) {
		t.Fatalf("expected errors with different codes not to match")
	}
}

func TestFromNestedError(t *testing.T) {
	inner := New(CodeInvalidArgument, "message is required", WithMetadata("field", "message"))
	outer := fmt.Errorf("decode request: %w", inner)

	if got := CodeOf(outer); got != CodeInvalidArgument {
		t.Fatalf("unexpected code: %s", got)
	}
	if got := HTTPStatusOf(outer); got != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", got)
	}
	e, ok := From(outer)
	if !ok {
		t.Fatalf("expected coded error")
	}
	if e.Metadata()["field"] != "message" {
		t.Fatalf("unexpected metadata: %v", e.Metadata())
	}
}

func TestPlainErrorFallsBackToUnknown(t *testing.T) {
	err := fmt.Errorf("boom")
	if CodeOf(err) != CodeUnknown {
		t.Fatalf("expected unknown code")
	}
	if HTTPStatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500 for plain errors")
	}
	if SeverityOf(err) != SeverityCritical {
		t.Fatalf("expected critical severity for plain errors")
	}
}

func TestSeverityOverride(t *testing.T) {
	err := New(CodeNotFound, "", WithSeverity(SeverityCritical))
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_ONLY"
	Register(code, Attributes{Message: "custom", Severity: SeverityInfo, HTTPStatus: http.StatusTeapot})
	if got := New(code, "").HTTPStatus(); got != http.StatusTeapot {
		t.Fatalf("unexpected status: %d", got)
	}
}
