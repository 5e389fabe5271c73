// Package errors provides the structured error type shared by the RXN and
// Deep Search plugins. Services, clients and repositories return *AppError so
// that the CLI and HTTP boundaries can report failures uniformly: the CLI
// prints the message and exits with status 1, the HTTP API maps the code to a
// status with HTTPStatusForCode and writes it as a JSON body.
//
// Codes are grouped by module prefix (COMMON_, RXN_, DS_) and declared in
// codes.go together with their HTTP status and default message.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack formats the call stack starting skip frames above its caller.
// Frames inside the Go runtime are left out.
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError carries a typed code, a user-facing message and an optional cause.
// It supports errors.Is, errors.As and errors.Unwrap through Unwrap.
//
// Usage:
//
//	return errors.New(errors.ErrCodeRXNSubmitFailed, "server unresponsive after 5 retries")
//	return errors.Wrap(err, errors.ErrCodeDSQueryFailed, "count query failed")
//	return errors.Newf(errors.ErrCodeDSCollectionNotFound, "invalid collection key or name '%s'", key).
//	           WithDetail("available: pubchem, arxiv-abstract")
type AppError struct {
	// Code identifies the failure category and selects the HTTP status.
	Code ErrorCode

	// Message is the primary description shown to CLI users and API callers.
	Message string

	// Detail is supplementary context, e.g. the last error observed by a retry
	// loop or the list of accepted values.
	Detail string

	// Cause is the underlying error, reachable through errors.Is and errors.As.
	Cause error

	// Stack is captured on New, Newf and Wrap. It is never part of Error()
	// and is only written to debug logs.
	Stack string
}

// Error formats as "[CODE] message: detail", dropping the detail when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of e with Detail set, leaving e
// unchanged. It returns nil on a nil receiver.
//
//	return errors.New(errors.ErrCodeRXNCredentials, "RXN API key is missing").WithDetail(path)
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of e with Cause set. It returns nil on a
// nil receiver.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// New constructs an AppError with code and message and captures the stack of
// the caller.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf is New with a message built from format and args.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap returns an AppError with code and message whose Cause is err. It
// returns nil when err is nil, so it can wrap a call result inline:
//
//	return errors.Wrap(tx.Commit(), errors.ErrCodeDatabaseError, "commit analysis record")
//
// When code is ErrCodeUnknown the code of the first AppError in err's chain
// is kept.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == ErrCodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any AppError in err's chain carries code. Plain
// errors between AppErrors end the walk.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var ae *AppError
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Cause
	}
	return false
}

// IsNotFound reports whether err's chain contains a not-found code: the
// generic one, a cache miss or an unknown Deep Search collection.
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound) ||
		IsCode(err, ErrCodeRXNCacheMiss) ||
		IsCode(err, ErrCodeDSCollectionNotFound)
}

// IsValidation reports whether err's chain contains an input validation code.
// Validation failures are not retried by the queue consumer and map to 400
// in the HTTP API.
func IsValidation(err error) bool {
	return IsCode(err, ErrCodeValidation) ||
		IsCode(err, ErrCodeBadRequest) ||
		IsCode(err, ErrCodeRXNInvalidInput) ||
		IsCode(err, ErrCodeRXNInvalidParams) ||
		IsCode(err, ErrCodeDSInvalidIdentifier)
}

// GetCode returns the code of the first AppError in err's chain, ErrCodeOK
// for a nil error and ErrCodeUnknown for an error without an AppError.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeUnknown
}

// ─────────────────────────────────────────────────────────────────────────────
// Shorthands
// ─────────────────────────────────────────────────────────────────────────────

// NotFound returns an ErrCodeNotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message, Stack: captureStack(1)}
}

// InvalidParam returns an ErrCodeValidation error.
func InvalidParam(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Stack: captureStack(1)}
}

// Internal returns an ErrCodeInternal error. The HTTP API replaces its
// message with a generic one.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Stack: captureStack(1)}
}

// Unauthorized returns an ErrCodeUnauthorized error.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message, Stack: captureStack(1)}
}
