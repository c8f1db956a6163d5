package domain

import (
	"errors"
	"fmt"
)

// ForbiddenError is returned when a consent check fails: missing, expired,
// owned by a different TPP, lacking the required scope, or not linked to the
// requested resource. It is never retried automatically.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// Forbidden builds a ForbiddenError with the given reason.
func Forbidden(reason string) error { return &ForbiddenError{Reason: reason} }

// Forbiddenf builds a ForbiddenError with a formatted reason.
func Forbiddenf(format string, args ...any) error {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// IsForbidden reports whether err is a consent/authorization failure.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// NotFoundError is returned when the caller is authorized but the underlying
// resource does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource }

// NotFound builds a NotFoundError for the named resource.
func NotFound(resource string) error { return &NotFoundError{Resource: resource} }

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConflictError is returned when an idempotency key is reused with a payload
// that differs from the one originally stored. The caller must pick a new key.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Conflict builds a ConflictError.
func Conflict(message string) error { return &ConflictError{Message: message} }

// IsConflict reports whether err is an idempotency conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// RuleViolationError carries a machine-readable business-rule reason code
// ("Empty Payload", "Schema Validation Failed", "Limit Exceeded", ...) for
// client remediation.
type RuleViolationError struct {
	Reason string
}

func (e *RuleViolationError) Error() string { return e.Reason }

// RuleViolation builds a RuleViolationError with the given reason code.
func RuleViolation(reason string) error { return &RuleViolationError{Reason: reason} }

// IsRuleViolation reports whether err is a business-rule violation.
func IsRuleViolation(err error) bool {
	var rv *RuleViolationError
	return errors.As(err, &rv)
}

// PipelineError is a hard, non-retryable failure raised mid-pipeline:
// invalid signature, consent binding mismatch, insufficient funds.
type PipelineError struct {
	Reason string
}

func (e *PipelineError) Error() string { return e.Reason }

// Pipeline builds a PipelineError with the given reason.
func Pipeline(reason string) error { return &PipelineError{Reason: reason} }

// IsPipeline reports whether err is a hard pipeline failure.
func IsPipeline(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
