package errors

import (
	stdErrors "errors"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		publicMsg string
		retryable bool
	}{
		{code: CodeValidation, publicMsg: "validation failed"},
		{code: CodeNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, publicMsg: "state transition disallowed"},
		{code: CodeInvalidRate, publicMsg: "commission schedule misconfigured"},
		{code: CodeConservation, publicMsg: "payment not yet settled"},
		{code: CodeDependency, publicMsg: "dependency unavailable", retryable: true},
		{code: CodeInternal, publicMsg: "internal error"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.PublicMessage != "internal error" {
		t.Fatalf("expected internal metadata, got %q", meta.PublicMessage)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing owner")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing owner" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	withDetails := base.WithDetails(map[string]string{"field": "owner_id"})
	if withDetails.Details() == nil {
		t.Fatal("expected details to be attached")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "payout rail unavailable")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: payout rail unavailable" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}

	if Wrap(CodeInternal, nil, "no cause").Unwrap() != nil {
		t.Fatal("wrapping nil should produce no cause")
	}
}

func TestAsAndHasCode(t *testing.T) {
	err := New(CodeConservation, "split does not sum to gross")
	if As(err) == nil {
		t.Fatal("As should recover the typed error")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("As should return nil for untyped errors")
	}
	if !HasCode(err, CodeConservation) {
		t.Fatal("HasCode should match the carried code")
	}
	if HasCode(err, CodeNotFound) {
		t.Fatal("HasCode should reject other codes")
	}
	if IsRetryable(err) {
		t.Fatal("conservation violations are not retryable")
	}
	if !IsRetryable(New(CodeDependency, "rail down")) {
		t.Fatal("dependency errors are retryable")
	}
}
