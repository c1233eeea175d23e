package protocol

import (
	"errors"
	"fmt"
)

const (
	// Input validation.
	ErrValidation = "E_VALIDATION"

	// World/session state.
	ErrNotFound = "E_NOT_FOUND"

	// Admission control.
	ErrRateLimit = "E_RATE_LIMIT"

	// Durable storage (logged only, never surfaced to callers).
	ErrPersistence = "E_PERSISTENCE"

	// Transport/decode layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrValidation:  {},
	ErrNotFound:    {},
	ErrRateLimit:   {},
	ErrPersistence: {},
	ErrBadRequest:  {},
	ErrInternal:    {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ValidationError names exactly one violated input constraint. The
// offending event is dropped without touching state and the error is
// reported only to the originating caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation against a session that was never
// spawned (or already removed).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ThrottledError rejects a request before validation; the request is
// dropped, not queued.
type ThrottledError struct {
	Origin string
	Scope  string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%s)", e.Origin, e.Scope)
}

// PersistenceError wraps a failed durable write. It is logged and
// otherwise ignored; the in-memory state stays authoritative.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CodeFor maps a reportable error to its wire code. Wrapped errors
// classify the same as bare ones.
func CodeFor(err error) string {
	var (
		verr *ValidationError
		nerr *NotFoundError
		terr *ThrottledError
		perr *PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return ErrValidation
	case errors.As(err, &nerr):
		return ErrNotFound
	case errors.As(err, &terr):
		return ErrRateLimit
	case errors.As(err, &perr):
		return ErrPersistence
	default:
		return ErrInternal
	}
}

// TypeFor maps a reportable error to the outbound frame type carrying
// it back to the originator.
func TypeFor(err error) string {
	var (
		nerr *NotFoundError
		terr *ThrottledError
	)
	switch {
	case errors.As(err, &nerr):
		return TypeErrNotFound
	case errors.As(err, &terr):
		return TypeErrRateLimit
	default:
		return TypeErrValidation
	}
}
