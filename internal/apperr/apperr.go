// Package apperr holds the coded error shared by the analysis service, the
// frame finders, capture and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeNoTracingStarted = "NO_TRACING_STARTED"
	CodeInvalidTrace     = "INVALID_TRACE"
	CodeTraceNotFound    = "TRACE_NOT_FOUND"
	CodeValidation       = "VALIDATION"
	CodeCaptureFailed    = "CAPTURE_FAILED"
	CodeCDPUnavailable   = "CDP_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// New builds a CodedError.
func New(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err wraps a CodedError with the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == code
}
