package sequence

import (
	"errors"
	"fmt"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
)

// Error represents a rejected store operation.
//
// A rejected operation never mutates the sequence or its history, so callers
// may log the error and carry on with the next edit or tick.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context (address, joint, field).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeInvalidAddress indicates a bar or beat index outside the grid.
	ErrCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// ErrCodeInvalidNotation indicates a grounding string that fails the
	// strict decoder, or grounding set on a non-foot joint.
	ErrCodeInvalidNotation ErrorCode = "INVALID_NOTATION"

	// ErrCodeInvalidField indicates any other out-of-range field value.
	ErrCodeInvalidField ErrorCode = "INVALID_FIELD"

	// ErrCodeEmptyIntersection indicates a knee safe-zone request whose
	// tolerance windows do not overlap.
	ErrCodeEmptyIntersection ErrorCode = "EMPTY_INTERSECTION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if addr, ok := e.Details["address"]; ok {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, addr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsInvalidAddress returns true if err is an out-of-range address error.
func IsInvalidAddress(err error) bool { return hasCode(err, ErrCodeInvalidAddress) }

// IsInvalidNotation returns true if err is a grounding notation error.
func IsInvalidNotation(err error) bool { return hasCode(err, ErrCodeInvalidNotation) }

// IsInvalidField returns true if err is a field validation error.
func IsInvalidField(err error) bool { return hasCode(err, ErrCodeInvalidField) }

// IsEmptyIntersection returns true if err reports disjoint safe-zone windows.
// Bare biomech.ErrEmptyIntersection also matches.
func IsEmptyIntersection(err error) bool {
	return hasCode(err, ErrCodeEmptyIntersection) || errors.Is(err, biomech.ErrEmptyIntersection)
}

// NewAddressError creates an Error for an address outside a bars x steps grid.
func NewAddressError(addr Address, bars, steps int) *Error {
	return &Error{
		Code:    ErrCodeInvalidAddress,
		Message: fmt.Sprintf("address outside %dx%d grid", bars, steps),
		Details: map[string]string{"address": addr.String()},
	}
}

// NewNotationError creates an Error for a rejected grounding string.
func NewNotationError(addr Address, joint, value string, cause error) *Error {
	return &Error{
		Code:    ErrCodeInvalidNotation,
		Message: fmt.Sprintf("joint %s: grounding %q rejected", joint, value),
		Details: map[string]string{"address": addr.String(), "joint": joint, "value": value},
		Err:     cause,
	}
}

// NewFieldError creates an Error for an invalid field value.
func NewFieldError(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidField,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]string{"field": field},
	}
}

// NewEmptyIntersectionError wraps biomech.ErrEmptyIntersection.
func NewEmptyIntersectionError(hip, foot float64) *Error {
	return &Error{
		Code:    ErrCodeEmptyIntersection,
		Message: fmt.Sprintf("hip %.1f and foot %.1f tolerance windows are disjoint", hip, foot),
		Details: map[string]string{
			"hip":  fmt.Sprintf("%g", hip),
			"foot": fmt.Sprintf("%g", foot),
		},
		Err: biomech.ErrEmptyIntersection,
	}
}
