// Package apperr defines the failure taxonomy shared by every layer.
//
// Handlers and services return an *Error carrying a Code; the dispatch layer is
// the only place that translates codes into HTTP statuses and envelopes, so the
// mapping lives here next to the codes themselves.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for transport-level translation.
type Code string

const (
	// CodeValidation covers missing or malformed caller input. Carries a
	// field-keyed message map when the failure is attributable to fields.
	CodeValidation Code = "validation"

	// CodeUnauthorized covers credential failures. The message stays generic
	// so credential enumeration is not possible.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound covers an unmatched route or an absent referenced entity.
	CodeNotFound Code = "not_found"

	// CodeConnectivity covers exhaustion of every database target.
	CodeConnectivity Code = "connectivity"

	// CodeTransaction covers a failed step inside a multi-entity composition,
	// after rollback.
	CodeTransaction Code = "transaction"

	// CodeInternal covers everything else.
	CodeInternal Code = "internal"
)

// Error is the typed failure every layer above the stores traffics in.
type Error struct {
	Code    Code
	Message string
	// Fields carries per-field validation messages; nil unless CodeValidation.
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithFields attaches field-level messages, used for validation failures.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

// CodeOf extracts the code from err, or CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// FieldsOf extracts the field map from err, or nil.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// MessageOf extracts the user-facing message from err. Non-typed errors map to
// a generic message so internal detail never reaches a response body.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}

// HTTPStatus maps a failure code to the status the dispatcher writes.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConnectivity, CodeInternal:
		return http.StatusInternalServerError
	case CodeTransaction:
		// A composition that failed on caller input is the caller's fault;
		// anything else is ours. The wrapper preserves the root cause.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf resolves the HTTP status for err, honouring the root cause of a
// transaction failure: a composition that failed validation surfaces as 400.
func StatusOf(err error) int {
	code := CodeOf(err)
	if code == CodeTransaction {
		var ae *Error
		if errors.As(err, &ae) && ae.cause != nil {
			if inner := CodeOf(ae.cause); inner == CodeValidation || inner == CodeNotFound {
				return http.StatusBadRequest
			}
		}
	}
	return HTTPStatus(code)
}
