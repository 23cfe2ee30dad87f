// Package domain defines the core domain models for RailState.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a business domain error with a structured error code.
//
// Codes follow RS-<AREA>-<NNNN>; the numeric part echoes the closest HTTP status.
type DomainError struct {
	Code       string   // Error code (e.g., "RS-VAL-4001")
	Message    string   // Human-readable message
	Details    string   // Optional additional details
	Violations []string // Every violated constraint (validation errors only)
	Cause      error    // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if len(e.Violations) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Violations, "; "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

func (e *DomainError) clone() *DomainError {
	c := *e
	if e.Violations != nil {
		c.Violations = append([]string(nil), e.Violations...)
	}
	return &c
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := e.clone()
	c.Details = details
	return c
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithViolations returns a copy of the error carrying the given violations.
func (e *DomainError) WithViolations(violations []string) *DomainError {
	c := e.clone()
	c.Violations = append([]string(nil), violations...)
	return c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := e.clone()
	c.Cause = cause
	return c
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ViolationsOf returns the violation list of a validation error, or nil.
func ViolationsOf(err error) []string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Violations
	}
	return nil
}

// IsConnectivity reports whether err is a ConnectivityError of either fault class.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnTransient) || errors.Is(err, ErrConnConfig)
}

// IsRetryable reports whether err is worth retrying.
// Only transient connectivity faults are; configuration faults never are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnTransient)
}

// ============================================================================
// Record Errors
// ============================================================================

var (
	// ErrValidation indicates a record violated its schema. Violations lists all of them.
	ErrValidation = NewDomainError("RS-VAL-4001", "validation failed")

	// ErrNotFound indicates the requested key is absent or expired.
	ErrNotFound = NewDomainError("RS-STOR-4040", "record not found")

	// ErrConflict indicates an update broke an invariant or the approval state machine.
	ErrConflict = NewDomainError("RS-STOR-4090", "update conflict")

	// ErrLockTimeout indicates the per-resource lock could not be taken in time.
	ErrLockTimeout = NewDomainError("RS-LOCK-4080", "lock wait timed out")

	// ErrSizeExceeded indicates the encoded payload is larger than allowed.
	ErrSizeExceeded = NewDomainError("RS-CODEC-4130", "payload size exceeded")

	// ErrCorruptRecord indicates a stored payload failed strict decoding.
	ErrCorruptRecord = NewDomainError("RS-CODEC-5002", "stored record is corrupt")
)

// ============================================================================
// Backend Errors
// ============================================================================

var (
	// ErrConnTransient indicates a retryable network or timeout fault.
	ErrConnTransient = NewDomainError("RS-CONN-5030", "backing store unavailable")

	// ErrConnConfig indicates a configuration fault (scheme, host, TLS trust, credentials).
	ErrConnConfig = NewDomainError("RS-CONN-5031", "backing store misconfigured")

	// ErrFallbackExhausted indicates the fallback store cannot take more data.
	ErrFallbackExhausted = NewDomainError("RS-STOR-5070", "fallback store exhausted")

	// ErrStorage indicates an unexpected reply from the backing store.
	ErrStorage = NewDomainError("RS-STOR-5001", "storage error")
)
