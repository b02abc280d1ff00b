package pipeline

import (
	"errors"
	"net/http"
)

// Code classifies terminal submission failures.
type Code string

const (
	// CodeInvalidInput marks classifier or pre-check rejections. Always
	// user-actionable; the message is surfaced verbatim.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeGenerationFailed marks a provider error or unusable output
	// after the fallback chain is exhausted.
	CodeGenerationFailed Code = "GENERATION_FAILED"
	// CodeGenerationEmpty marks technically-valid but too-short provider
	// output.
	CodeGenerationEmpty Code = "GENERATION_EMPTY"
	// CodeFinalValidationFailed marks a structured result rejected by the
	// output validator.
	CodeFinalValidationFailed Code = "FINAL_VALIDATION_FAILED"
	// CodeNeedsFork marks a patch attempted on an immutable original.
	CodeNeedsFork Code = "NEEDS_FORK"
)

// Error is a terminal submission failure with a message safe to show to
// the user.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the failure code to its transport status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeGenerationEmpty, CodeFinalValidationFailed, CodeNeedsFork:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// AsError extracts the taxonomy error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
