package errors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInternal          Code = "internal"
	CodeInvalidArgument   Code = "invalid"
	CodeNotFound          Code = "not_found"
	CodeAborted           Code = "aborted"
	CodeUnavailable       Code = "unavailable"
	CodeResourceExhausted Code = "resource_exhausted"
)

type Status struct {
	// Source error
	Err error `json:"-"`

	// Machine-readable status code.
	Code Code `json:"code"`

	// Human-readable error message.
	Message string `json:"message"`
}

// Unwrap status error and return source error.
func (e *Status) Unwrap() error {
	return e.Err
}

// Source sets the origin err and return error.
func (e *Status) Source(err error) *Status {
	e.Err = err
	return e
}

// Error implements the error interface.
func (e *Status) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Http returns http status code mapped to error status code.
func (e *Status) Http() int {
	return httpStatus(e.Code)
}

// AsCode unwraps an error and returns its code.
// Non-application errors always return CodeInternal.
func AsCode(err error) Code {
	if err == nil {
		return ""
	}
	e := AsStatus(err)
	if e != nil {
		return e.Code
	}
	return CodeInternal
}

// Message unwraps an error and returns its message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	e := AsStatus(err)
	if e != nil {
		return e.Error()
	}
	return err.Error()
}

// AsStatus return err as Status error.
func AsStatus(err error) (e *Status) {
	if err == nil {
		return nil
	}
	if errors.As(err, &e) {
		return
	}
	return
}

// Source read status error source.
func Source(err error) error {
	if e := AsStatus(err); e != nil {
		return e.Err
	}
	return err
}

// IsStatus checks if err is Status type.
func IsStatus(err error) bool {
	return AsStatus(err) != nil
}

// HttpStatus returns http status of err.
func HttpStatus(err error) int {
	return httpStatus(AsCode(err))
}

// Format is a helper function to return an Error with a given status and formatted message.
func Format(code Code, format string, args ...any) *Status {
	return &Status{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound is a helper function to return an not found Error.
func NotFound(format string, args ...any) *Status {
	return Format(CodeNotFound, format, args...)
}

// InvalidArgument is a helper function to return an invalid argument Error.
func InvalidArgument(format string, args ...any) *Status {
	return Format(CodeInvalidArgument, format, args...)
}

// Internal is a helper function to return an internal Error.
func Internal(format string, args ...any) *Status {
	return Format(CodeInternal, format, args...)
}

// Aborted is a helper function to return aborted error status.
func Aborted(format string, args ...any) *Status {
	return Format(CodeAborted, format, args...)
}

// Unavailable is a helper function to return an error status for a
// backend that could not be reached.
func Unavailable(format string, args ...any) *Status {
	return Format(CodeUnavailable, format, args...)
}

// ResourceExhausted is a helper function to return an error status for
// work rejected by a capacity or rate policy. Callers may retry later.
func ResourceExhausted(format string, args ...any) *Status {
	return Format(CodeResourceExhausted, format, args...)
}

// IsNotFound checks if err is not found error.
func IsNotFound(err error) bool {
	return AsCode(err) == CodeNotFound
}

// IsInvalidArgument checks if err is invalid argument error.
func IsInvalidArgument(err error) bool {
	return AsCode(err) == CodeInvalidArgument
}

// IsInternal checks if err is internal error.
func IsInternal(err error) bool {
	return AsCode(err) == CodeInternal
}

// IsAborted checks if err is aborted error.
func IsAborted(err error) bool {
	return AsCode(err) == CodeAborted
}

// IsUnavailable checks if err is unavailable error.
func IsUnavailable(err error) bool {
	return AsCode(err) == CodeUnavailable
}

// IsResourceExhausted checks if err is resource exhausted error.
func IsResourceExhausted(err error) bool {
	return AsCode(err) == CodeResourceExhausted
}
