package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Transfer workflow errors. State conflicts are distinct from validation
// failures so clients can re-fetch the current state instead of retrying the
// same payload.
var (
	ErrDuplicateActiveRequest = New("DUPLICATE_ACTIVE_REQUEST", http.StatusConflict, "an active transfer request already exists for this member")
	ErrInvalidReasonLength    = New("INVALID_REASON_LENGTH", http.StatusBadRequest, "reason must be between 10 and 500 characters")
	ErrInvalidDestination     = New("INVALID_DESTINATION", http.StatusBadRequest, "destination organization is invalid")
	ErrSubjectNotInSourceOrg  = New("SUBJECT_NOT_IN_SOURCE_ORG", http.StatusBadRequest, "member does not belong to the source organization")
	ErrResponseNoteTooLong    = New("RESPONSE_NOTE_TOO_LONG", http.StatusBadRequest, "response note must be at most 500 characters")
	ErrAdminNotesTooLong      = New("ADMIN_NOTES_TOO_LONG", http.StatusBadRequest, "admin notes must be at most 500 characters")
	ErrStateConflict          = New("STATE_CONFLICT", http.StatusConflict, "transfer request is not in the expected state")
	ErrMembershipUpdate       = &Error{Code: "MEMBERSHIP_UPDATE_FAILED", Status: http.StatusServiceUnavailable, Message: "membership update failed, transfer remains pending", Retryable: true}
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
