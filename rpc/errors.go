package rpc

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes callers are expected to branch on.
// Matching is always done on the Kind, never on the message text.
type Kind int

const (
	// KindProtocol is an HTTP or JSON-RPC level failure. Callers may retry
	// or fall back to an alternative method.
	KindProtocol Kind = iota
	// KindSessionExpired means the stored authentication is no longer valid.
	// The expected recovery is a forced logout and a fresh login.
	KindSessionExpired
	// KindValidation is malformed caller input, such as an unparseable URL.
	// Retrying without correcting the input is pointless.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindSessionExpired:
		return "session-expired"
	case KindValidation:
		return "validation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type surfaced by the transport and the services
// built on it.
type Error struct {
	Kind    Kind
	Message string
	// Code carries the JSON-RPC error code or, for plain HTTP failures,
	// the HTTP status. Zero when the server supplied none.
	Code int
	// Debug is the server-side traceback when the response included one.
	Debug string
	// Network marks failures that never produced a well-formed server
	// response (DNS, timeout, malformed body).
	Network bool
	cause   error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// ProtocolError builds a KindProtocol error wrapping cause.
func ProtocolError(msg string, cause error) *Error {
	return &Error{Kind: KindProtocol, Message: msg, cause: cause}
}

// SessionExpired builds a KindSessionExpired error.
func SessionExpired(msg string) *Error {
	return &Error{Kind: KindSessionExpired, Message: msg}
}

// ValidationError builds a KindValidation error.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf extracts the Kind from err. Errors that are not (or do not wrap)
// an *Error report as KindProtocol, the recoverable default.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProtocol
}

// IsSessionExpired reports whether err is a session-expired condition.
func IsSessionExpired(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSessionExpired
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}
