// Package errors is the project error type: a code for machines, a message for people
// import it as perr
package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine readable half of an error; values are on the wire so only append
type ErrorCode uint16

// Error codes
const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodePanic
	// ErrorCodeUnavailable marks a backend that may answer on retry
	ErrorCodeUnavailable
	ErrorCodeTooManyRequests
	// ErrorCodeConflict covers lost races such as a stale claim token or version
	ErrorCodeConflict
	ErrorCodeUnauthorized
	ErrorCodeForbidden
	ErrorCodeInvalidArgument
	ErrorCodeValidation
	ErrorCodeJSON
	ErrorCodeNotFound
	ErrorCodeDuplicateKey
	ErrorCodeDB
)

var codeNames = [...]string{
	ErrorCodeUnknown:         "unknown",
	ErrorCodePanic:           "panic",
	ErrorCodeUnavailable:     "unavailable",
	ErrorCodeTooManyRequests: "too_many_requests",
	ErrorCodeConflict:        "conflict",
	ErrorCodeUnauthorized:    "unauthorized",
	ErrorCodeForbidden:       "forbidden",
	ErrorCodeInvalidArgument: "invalid_argument",
	ErrorCodeValidation:      "validation",
	ErrorCodeJSON:            "json",
	ErrorCodeNotFound:        "not_found",
	ErrorCodeDuplicateKey:    "duplicate_key",
	ErrorCodeDB:              "db",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

var statusByCode = map[ErrorCode]int{
	ErrorCodeNotFound:        http.StatusNotFound,
	ErrorCodeInvalidArgument: http.StatusUnprocessableEntity,
	ErrorCodeDuplicateKey:    http.StatusConflict,
	ErrorCodeConflict:        http.StatusConflict,
	ErrorCodeValidation:      http.StatusBadRequest,
	ErrorCodeJSON:            http.StatusBadRequest,
	ErrorCodeUnauthorized:    http.StatusUnauthorized,
	ErrorCodeForbidden:       http.StatusForbidden,
	ErrorCodeTooManyRequests: http.StatusTooManyRequests,
	ErrorCodeUnavailable:     http.StatusServiceUnavailable,
}

// HTTPStatusCode maps c onto a status; anything unmapped is a 500
func HTTPStatusCode(c ErrorCode) int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a code, a message, an optional offending field and the wrapped cause
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
}

// Wire is the serialisable part of an Error
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.orig != nil {
		return e.msg + ": " + e.orig.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending input field, if any
func (e *Error) Field() string { return e.field }

// WireFrom flattens err; foreign errors become ErrorCodeUnknown and nil is the zero Wire
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return Wire{Code: e.code, Message: e.msg, Field: e.field}
	}
	return Wire{Code: ErrorCodeUnknown, Message: err.Error()}
}

// Root returns the innermost cause of err
func Root(err error) error {
	for {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
}

// As finds the outermost *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrs.As(err, &e)
	return e, ok
}

// CodeOf returns the code of err, ErrorCodeUnknown for foreign errors
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err carries code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus maps any error onto a status
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// WithField returns a copy of err naming field; foreign errors pass through
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// New returns an error with code and msg
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf is New with a format
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap annotates orig with code and msg
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf is Wrap with a format
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// JSONErrf returns a request body error
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }

// PanicErrf returns the error a recovered panic is reported as
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }

// Unauthorizedf returns an unauthorized error
func Unauthorizedf(format string, a ...any) error { return Newf(ErrorCodeUnauthorized, format, a...) }

// Internalf returns an unclassified error for broken invariants
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }

// Retryable reports whether err is transient contention worth an immediate retry
func Retryable(err error) bool { return IsRetryable(err) }
