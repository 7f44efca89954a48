// Package apperr defines the error kinds the workflow surfaces to callers.
//
// Every failure returned by the service layer either is an *Error carrying
// one of the kinds below or wraps an infrastructure error, which callers
// treat as Internal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to decide between
// retrying, refreshing, or giving up.
type Kind string

const (
	KindNotFound                  Kind = "NOT_FOUND"
	KindUnauthorized              Kind = "UNAUTHORIZED"
	KindUnauthenticated           Kind = "UNAUTHENTICATED"
	KindInvalidTransition         Kind = "INVALID_TRANSITION"
	KindDuplicateCertificate      Kind = "DUPLICATE_CERTIFICATE"
	KindCertificateIssuanceFailed Kind = "CERTIFICATE_ISSUANCE_FAILED"
	KindInvalidInput              Kind = "INVALID_INPUT"
	KindInternal                  Kind = "INTERNAL"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrUnauthorized              = &Error{Kind: KindUnauthorized}
	ErrUnauthenticated           = &Error{Kind: KindUnauthenticated}
	ErrInvalidTransition         = &Error{Kind: KindInvalidTransition}
	ErrDuplicateCertificate      = &Error{Kind: KindDuplicateCertificate}
	ErrCertificateIssuanceFailed = &Error{Kind: KindCertificateIssuanceFailed}
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
)

// Error is a classified workflow error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return string(e.Kind)
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	default:
		return e.Message + ": " + e.Cause.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
