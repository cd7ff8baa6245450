package goSession

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is an exported constant or variable used by the session engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionKeysNotFound is an exported constant or variable used by the session engine.
	ErrSessionKeysNotFound = errors.New("session keys not found")
	// ErrSessionExpired is an exported constant or variable used by the session engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrClientNotReady is an exported constant or variable used by the session engine.
	ErrClientNotReady = errors.New("client not initialized")
)

// ErrorKind is the closed classification of transport and authority errors.
// Every non-2xx response is mapped to exactly one kind at the transport
// boundary; downstream code matches on kinds instead of probing error shapes.
type ErrorKind uint8

const (
	// KindGeneric is an exported constant or variable used by the session engine.
	KindGeneric ErrorKind = iota
	// KindBadRequest is an exported constant or variable used by the session engine.
	KindBadRequest
	// KindUnauthorized is an exported constant or variable used by the session engine.
	KindUnauthorized
	// KindNotAllowed is an exported constant or variable used by the session engine.
	KindNotAllowed
	// KindNotFound is an exported constant or variable used by the session engine.
	KindNotFound
	// KindUnavailable is an exported constant or variable used by the session engine.
	KindUnavailable
	// KindInternalServerError is an exported constant or variable used by the session engine.
	KindInternalServerError
)

// String describes the string operation and its observable behavior.
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotAllowed:
		return "not_allowed"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindInternalServerError:
		return "internal_server_error"
	default:
		return "generic"
	}
}

// Protocol-specific machine-readable codes surfaced by the authority in the
// response body. Codes travel inside [RequestError.Code].
const (
	// CodeInvalidEmail is an exported constant or variable used by the session engine.
	CodeInvalidEmail = "invalid_email"
	// CodeInvalidPassword is an exported constant or variable used by the session engine.
	CodeInvalidPassword = "invalid_password"
	// CodePasswordTooShort is an exported constant or variable used by the session engine.
	CodePasswordTooShort = "password_too_short"
	// CodePasswordTooLong is an exported constant or variable used by the session engine.
	CodePasswordTooLong = "password_too_long"
	// CodeDuplicateUser is an exported constant or variable used by the session engine.
	CodeDuplicateUser = "duplicate_user"
	// CodeUserDisabled is an exported constant or variable used by the session engine.
	CodeUserDisabled = "user_disabled"
	// CodeResetTokenInvalid is an exported constant or variable used by the session engine.
	CodeResetTokenInvalid = "reset_token_invalid"
	// CodeResetTokenExpired is an exported constant or variable used by the session engine.
	CodeResetTokenExpired = "reset_token_expired"
	// CodeResetTokenNotFound is an exported constant or variable used by the session engine.
	CodeResetTokenNotFound = "reset_token_not_found"
	// CodePasswordMismatch is an exported constant or variable used by the session engine.
	CodePasswordMismatch = "password_mismatch"
	// CodePasswordlessInvalidToken is an exported constant or variable used by the session engine.
	CodePasswordlessInvalidToken = "passwordless_invalid_token"
	// CodePasswordlessExpired is an exported constant or variable used by the session engine.
	CodePasswordlessExpired = "passwordless_expired"
	// CodeAwaitConfirmation is an exported constant or variable used by the session engine.
	CodeAwaitConfirmation = "passwordless_await_confirmation"
	// CodeSessionExpired is an exported constant or variable used by the session engine.
	CodeSessionExpired = "session_expired"
)

// RequestError is the tagged transport/authority error produced once at the
// transport boundary. Kind is always set; Status is the HTTP status when one
// was observed; Code carries the authority's machine-readable code when the
// response body included one.
type RequestError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
}

// Error describes the error operation and its observable behavior.
func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed: %s (%s)", e.Kind, e.Code)
	}
	if e.Message != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Kind)
}

// KindFromStatus maps an HTTP status code onto the closed [ErrorKind]
// enumeration.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case 400:
		return KindBadRequest
	case 401:
		return KindUnauthorized
	case 403:
		return KindNotAllowed
	case 404:
		return KindNotFound
	case 500:
		return KindInternalServerError
	case 502, 503, 504:
		return KindUnavailable
	default:
		return KindGeneric
	}
}

// AsRequestError unwraps err into a [*RequestError] when the chain contains
// one.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// IsKind reports whether err is a classified transport error of the given
// kind.
func IsKind(err error, kind ErrorKind) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Kind == kind
}

// IsClientKind reports whether err is a classified 4xx-class error
// (bad request, unauthorized, not allowed, not found).
func IsClientKind(err error) bool {
	reqErr, ok := AsRequestError(err)
	if !ok {
		return false
	}
	switch reqErr.Kind {
	case KindBadRequest, KindUnauthorized, KindNotAllowed, KindNotFound:
		return true
	}
	return false
}

// IsAwaitConfirmation reports whether err is the authority's
// "awaiting out-of-band confirmation" response during passwordless
// verification. It is a controlled wait-and-retry signal, not a failure.
func IsAwaitConfirmation(err error) bool {
	reqErr, ok := AsRequestError(err)
	return ok && reqErr.Code == CodeAwaitConfirmation
}

// IsCancellation reports whether err is a context cancellation outcome.
// Cancellation is a distinct non-error outcome and is never mapped into the
// [ErrorKind] taxonomy.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
