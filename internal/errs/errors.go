// Package errs defines the service-wide error taxonomy as a tagged variant
// type. Handlers map kinds to HTTP responses in one place; no error class
// hierarchy, no instanceof chains.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates error categories across the service boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicateAccount
	KindInvalidCredentials
	KindMissingToken
	KindMalformedToken
	KindExpiredToken
	KindInvalidToken
	KindAuthFailure
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateAccount:
		return "duplicate_account"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindMissingToken:
		return "missing_token"
	case KindMalformedToken:
		return "malformed_token"
	case KindExpiredToken:
		return "expired_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindAuthFailure:
		return "auth_failure"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a kind, a client-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal for any
// error outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the client-safe message, defaulting to a generic one so
// internal details never leak into responses.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal Error"
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
