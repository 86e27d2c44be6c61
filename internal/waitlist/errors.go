package waitlist

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError signals malformed input from the caller
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError signals an unknown waitlist entry
type NotFoundError struct {
	EntryID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("waitlist entry %s not found", e.EntryID)
}

// ForbiddenError signals that the acting user may not perform the operation
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// ConflictError signals an illegal state transition or a lost race.
// Callers surface it as "this slot is no longer available to you"
// rather than a generic failure.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// DispatchError signals a failed offer delivery. It is always absorbed
// inside the engine: logged and recorded, never returned to the caller
// of a transition.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("offer dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func newConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
