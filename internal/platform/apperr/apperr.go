package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInternal     Code = "INTERNAL"
)

// Error is the domain error carried across service boundaries. Message
// names the precondition that failed so the HTTP layer can render it
// verbatim.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func Invalid(msg string) *Error      { return &Error{Code: CodeInvalidInput, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Code: CodeConflict, Message: msg} }
func Unavailable(msg string) *Error  { return &Error{Code: CodeUnavailable, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Code: CodeUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Code: CodeForbidden, Message: msg} }
func Internal(msg string) *Error     { return &Error{Code: CodeInternal, Message: msg} }

func Invalidf(format string, args ...any) *Error {
	return Invalid(fmt.Sprintf(format, args...))
}

// CodeOf extracts the taxonomy code, defaulting to INTERNAL for wrapped
// driver or IO errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool { return CodeOf(err) == code }

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeUnavailable:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Body builds the wire shape handlers render on failure.
func Body(code Code, msg string) any {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func BodyFromErr(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return Body(ae.Code, ae.Message)
	}
	return Body(CodeInternal, err.Error())
}
