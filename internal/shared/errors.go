package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without string matching.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindPolicy       Kind = "policy_violation"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindTransient    Kind = "transient_storage"
	KindUnauthorized Kind = "unauthorized"
)

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPolicy indicates a well-formed request that breaks a business rule.
	ErrPolicy = errors.New("policy violation")
	// ErrConflict indicates the request would create a duplicate.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrTransient indicates the store was unavailable; the call is safe to retry.
	ErrTransient = errors.New("transient storage error")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var sentinels = map[Kind]error{
	KindNotFound:     ErrNotFound,
	KindPolicy:       ErrPolicy,
	KindConflict:     ErrConflict,
	KindValidation:   ErrValidation,
	KindTransient:    ErrTransient,
	KindUnauthorized: ErrInvalidCredentials,
}

// Error is the structured failure returned by every billing operation.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindTransient {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, id),
		Detail:  map[string]any{"entity": entity, "id": id},
	}
}

// Policy reports a business-rule violation.
func Policy(message string, detail map[string]any) *Error {
	return &Error{Kind: KindPolicy, Message: message, Detail: detail}
}

// Conflict reports a duplicate; detail should reference the existing record.
func Conflict(message string, detail map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: message, Detail: detail}
}

// Validation reports malformed input with field-level detail.
func Validation(message string, fields map[string]string) *Error {
	detail := map[string]any{}
	if len(fields) > 0 {
		detail["fields"] = fields
	}
	return &Error{Kind: KindValidation, Message: message, Detail: detail}
}

// Unauthorized reports a missing or invalid admin identity.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Transient wraps a storage failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// StorageError passes structured errors through untouched and wraps
// everything else as transient.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return Transient(op, err)
}

// KindOf extracts the kind from err, or "" when err is not structured.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// AsError unwraps err to *Error.
func AsError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
