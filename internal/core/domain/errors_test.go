package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("RS-TEST-1000", "test message"),
			expected: "[RS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("RS-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[RS-TEST-1001] test message: extra info",
		},
		{
			name:     "error with violations",
			err:      NewDomainError("RS-TEST-1002", "bad").WithViolations([]string{"a", "b"}),
			expected: "[RS-TEST-1002] bad: a; b",
		},
		{
			name:     "error with cause",
			err:      NewDomainError("RS-TEST-1003", "bad").WithCause(fmt.Errorf("io")),
			expected: "[RS-TEST-1003] bad: io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("RS-TEST-1000", "message 1")
	err2 := NewDomainError("RS-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("RS-TEST-1001", "message 1") // Different code

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("RS-TEST-1000", "wrapper").WithCause(cause)

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := NewDomainError("RS-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopiesDoNotShare(t *testing.T) {
	original := ErrValidation
	withViolations := original.WithViolations([]string{"x"})
	withDetails := withViolations.WithDetails("more")

	if original.Violations != nil || original.Details != "" {
		t.Fatal("sentinel was modified")
	}
	if len(withDetails.Violations) != 1 || withDetails.Violations[0] != "x" {
		t.Fatalf("Violations = %v, want [x]", withDetails.Violations)
	}
	withDetails.Violations[0] = "changed"
	if withViolations.Violations[0] != "x" {
		t.Fatal("copies share the violations slice")
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrNotFound

	if !IsDomainError(err, "RS-STOR-4040") {
		t.Error("IsDomainError should return true for matching code")
	}
	if IsDomainError(err, "RS-STOR-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}
	if IsDomainError(fmt.Errorf("regular error"), "RS-STOR-4040") {
		t.Error("IsDomainError should return false for non-DomainError")
	}

	wrapped := fmt.Errorf("wrapped: %w", ErrNotFound)
	if !IsDomainError(wrapped, "RS-STOR-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrConflict, "RS-STOR-4090"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrLockTimeout), "RS-LOCK-4080"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		{ErrValidation, "RS-VAL-4001"},
		{ErrNotFound, "RS-STOR-4040"},
		{ErrConflict, "RS-STOR-4090"},
		{ErrLockTimeout, "RS-LOCK-4080"},
		{ErrSizeExceeded, "RS-CODEC-4130"},
		{ErrCorruptRecord, "RS-CODEC-5002"},
		{ErrConnTransient, "RS-CONN-5030"},
		{ErrConnConfig, "RS-CONN-5031"},
		{ErrFallbackExhausted, "RS-STOR-5070"},
		{ErrStorage, "RS-STOR-5001"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestConnectivityClassification(t *testing.T) {
	tests := []struct {
		err          error
		connectivity bool
		retryable    bool
	}{
		{ErrConnTransient.WithDetails("timeout"), true, true},
		{fmt.Errorf("get: %w", ErrConnTransient), true, true},
		{ErrConnConfig.WithDetails("bad scheme"), true, false},
		{ErrValidation, false, false},
		{ErrNotFound, false, false},
		{errors.New("plain"), false, false},
	}

	for _, tt := range tests {
		if got := IsConnectivity(tt.err); got != tt.connectivity {
			t.Errorf("IsConnectivity(%v) = %v, want %v", tt.err, got, tt.connectivity)
		}
		if got := IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}

func TestErrorChaining(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ErrNotFound.
		WithDetails("workflow ABC-000001").
		WithCause(cause)

	if err.Code != "RS-STOR-4040" {
		t.Errorf("Code = %q, want %q", err.Code, "RS-STOR-4040")
	}
	if err.Details != "workflow ABC-000001" {
		t.Errorf("Details = %q", err.Details)
	}
	if err.Cause != cause {
		t.Error("Cause should be preserved")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is should work after chaining")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}
