// Package apperrors defines the error taxonomy shared across zkgate's
// services. Every error the core produces is one of four kinds (invalid
// input, policy denial, transient dependency failure, internal invariant
// violation), each carrying both a gRPC status code and an HTTP status so
// the same value drives every transport's response.
package apperrors

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Error is the shared error type. It wraps an underlying cause (if any) and
// carries enough metadata for a handler to respond without inspecting
// strings.
type Error struct {
	Code       codes.Code
	Message    string
	HTTPStatus int
	Err        error
	Details    map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on Code and Message rather than on the wrapped cause, so
// callers can write errors.Is(err, apperrors.ErrReplay) regardless of what
// caused it.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code && e.Message == t.Message
	}
	return false
}

// WithDetails returns a copy of e carrying additional structured context.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// Wrap attaches a cause to a copy of e.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.Err = cause
	return &clone
}

// New constructs an ad-hoc error of the given code.
func New(code codes.Code, httpStatus int, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Sentinel errors covering the four kinds the core produces.
var (
	// Invalid input.
	ErrInvalidArgument = &Error{Code: codes.InvalidArgument, Message: "invalid argument", HTTPStatus: http.StatusBadRequest}

	// Policy denial.
	ErrReplay            = &Error{Code: codes.Unauthenticated, Message: "nullifier replay detected", HTTPStatus: http.StatusUnauthorized}
	ErrNullifierMismatch = &Error{Code: codes.PermissionDenied, Message: "nullifier mismatch between header and proof", HTTPStatus: http.StatusForbidden}
	ErrPaymentNotFound   = &Error{Code: codes.PermissionDenied, Message: "payment not found", HTTPStatus: http.StatusForbidden}
	ErrPaymentUsed       = &Error{Code: codes.PermissionDenied, Message: "payment already used", HTTPStatus: http.StatusForbidden}
	ErrPaymentReserved   = &Error{Code: codes.PermissionDenied, Message: "payment already reserved", HTTPStatus: http.StatusForbidden}
	ErrPaymentTooLow     = &Error{Code: codes.PermissionDenied, Message: "payment amount below minimum", HTTPStatus: http.StatusForbidden}
	ErrInsufficientConf  = &Error{Code: codes.PermissionDenied, Message: "insufficient confirmations", HTTPStatus: http.StatusForbidden}
	ErrProofInvalid      = &Error{Code: codes.PermissionDenied, Message: "proof failed verification", HTTPStatus: http.StatusForbidden}
	ErrComplianceFailed  = &Error{Code: codes.PermissionDenied, Message: "compliance result false", HTTPStatus: http.StatusForbidden}
	ErrNotFound          = &Error{Code: codes.NotFound, Message: "not found", HTTPStatus: http.StatusNotFound}
	ErrConflict          = &Error{Code: codes.AlreadyExists, Message: "already exists", HTTPStatus: http.StatusConflict}

	// Transient dependency failure.
	ErrUnavailable = &Error{Code: codes.Unavailable, Message: "dependency temporarily unavailable", HTTPStatus: http.StatusServiceUnavailable}

	// Internal invariant violation.
	ErrInternal = &Error{Code: codes.Internal, Message: "internal invariant violation", HTTPStatus: http.StatusInternalServerError}
)

// HTTPStatusFor returns the HTTP status to report for err, defaulting to 500
// for anything that isn't one of our typed errors.
func HTTPStatusFor(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeFor returns the gRPC status code for err, defaulting to Unknown.
func CodeFor(err error) codes.Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return codes.Unknown
}
