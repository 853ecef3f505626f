// Package domainerrors defines the coded error type shared by services and
// translated to HTTP responses by pkg/platform/httputil. Services create
// these with New/Wrap; stores return pkg/platform/sentinel errors instead
// and services translate at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error code returned to clients.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeRateLimited  Code = "rate_limit_exceeded"
	CodeUnavailable  Code = "service_unavailable"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// Ceremony verification codes. These are the only detail authentication
	// failures expose; the underlying cryptographic reason stays server-side.
	CodeInvalidSignature   Code = "invalid_signature"
	CodeChallengeExpired   Code = "challenge_expired"
	CodeMalformedCeremony  Code = "malformed_ceremony"
	CodeCeremonyRejected   Code = "ceremony_rejected"
	CodeCredentialNotFound Code = "credential_not_found"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain code from an error chain.
// Unrecognized errors map to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the domain message from an error chain, empty if the
// error is not a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// httpStatus maps each code to its HTTP status.
var httpStatus = map[Code]int{
	CodeBadRequest:         http.StatusBadRequest,
	CodeInvalidInput:       http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeInternal:           http.StatusInternalServerError,
	CodeInvalidSignature:   http.StatusBadRequest,
	CodeChallengeExpired:   http.StatusBadRequest,
	CodeMalformedCeremony:  http.StatusBadRequest,
	CodeCeremonyRejected:   http.StatusUnauthorized,
	CodeCredentialNotFound: http.StatusUnauthorized,
}

// ToHTTPStatus returns the HTTP status for a code, 500 for unknown codes.
func ToHTTPStatus(code Code) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
