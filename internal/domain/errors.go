package domain

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies engine failures so the API layer can map them to
// client-error vs server-error responses.
type ErrorCategory string

const (
	// CategoryValidation - missing/invalid inputs, detected before any numerical work
	CategoryValidation ErrorCategory = "validation"
	// CategoryDomainState - inputs individually valid but the requested
	// computation is undefined (e.g. analytics on a matured bond)
	CategoryDomainState ErrorCategory = "domain_state"
	// CategorySolver - numerical failures: non-convergence, un-bracketed root,
	// out-of-range result
	CategorySolver ErrorCategory = "solver"
	// CategoryReferenceData - unresolved security/offering/holding identifiers
	CategoryReferenceData ErrorCategory = "reference_data"
)

// Error is the typed result-or-error value returned by every engine
// component. Expected failure modes never panic.
type Error struct {
	Category ErrorCategory
	Message  string
}

func (e *Error) Error() string {
	return e.Message
}

// NewValidationError creates an input-validation error.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

// NewDomainStateError creates a domain-state error.
func NewDomainStateError(format string, args ...interface{}) *Error {
	return &Error{Category: CategoryDomainState, Message: fmt.Sprintf(format, args...)}
}

// NewSolverError creates a numerical-solver error.
func NewSolverError(format string, args ...interface{}) *Error {
	return &Error{Category: CategorySolver, Message: fmt.Sprintf(format, args...)}
}

// NewReferenceDataError creates an unresolved-identifier error.
func NewReferenceDataError(format string, args ...interface{}) *Error {
	return &Error{Category: CategoryReferenceData, Message: fmt.Sprintf(format, args...)}
}

// CategoryOf extracts the error category, defaulting to solver (server-error)
// for unclassified errors.
func CategoryOf(err error) ErrorCategory {
	var de *Error
	if errors.As(err, &de) {
		return de.Category
	}
	return CategorySolver
}

// IsClientError reports whether the error maps to a client-error response.
func IsClientError(err error) bool {
	switch CategoryOf(err) {
	case CategoryValidation, CategoryDomainState, CategoryReferenceData:
		return true
	}
	return false
}
