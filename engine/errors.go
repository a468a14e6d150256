package engine

import (
	"errors"
	"fmt"
)

// Error is an engine-reported failure carrying the symbolic error code
// alongside the raw numeric one, so callers can branch on stable codes
// rather than message text.
type Error struct {
	Message string
	Code    string
	RawCode int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// NewError builds an Error from a raw engine code and message, resolving the
// symbolic code name.
func NewError(rawCode int, message string) *Error {
	return &Error{Message: message, Code: CodeName(rawCode), RawCode: rawCode}
}

// Errorf is NewError with formatting.
func Errorf(rawCode int, format string, args ...any) *Error {
	return NewError(rawCode, fmt.Sprintf(format, args...))
}

// NotOpenError reports an operation attempted against a closed database
// connection.
func NotOpenError() *Error {
	return &Error{
		Message: "The database connection is not open",
		Code:    "SQLITE_NOTOPEN",
	}
}

// IsNotOpen reports whether err is the closed-connection error.
func IsNotOpen(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == "SQLITE_NOTOPEN"
}

// IsInterrupted reports whether err was caused by cooperative cancellation.
func IsInterrupted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.RawCode&0xff == codeInterrupt
}

// IsBusy reports whether err is a storage lock timeout.
func IsBusy(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.RawCode&0xff == codeBusy
}

// IsAuthDenied reports whether err was raised by the authorizer.
func IsAuthDenied(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.RawCode&0xff == codeAuth
}

// BindError reports a host value that cannot be bound as a parameter:
// an unsupported kind, or an integer outside the signed 64-bit range.
type BindError struct {
	Message string
}

func (e *BindError) Error() string { return e.Message }

// IsBindError reports whether err is a parameter binding failure.
func IsBindError(err error) bool {
	var e *BindError
	return errors.As(err, &e)
}
