package service

import (
	"errors"
	"fmt"
	"time"
)

// Code is the closed set of failures the authentication core reports.  A
// Code is chosen once where the failure happens; the HTTP layer maps it to a
// status with an exhaustive switch and never inspects messages.
type Code string

const (
	CodeValidation         Code = "VALIDATION_FAILED"
	CodeNoToken            Code = "NO_TOKEN_PROVIDED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenRequired      Code = "ACCESS_TOKEN_REQUIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeSessionInvalid     Code = "SESSION_INVALID"
	CodeAccountDeactivated Code = "ACCOUNT_DEACTIVATED"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeUserExists         Code = "USER_EXISTS"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

// Kind groups codes into the error taxonomy.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindConflict
	KindNotFound
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInfrastructure:
		return "infrastructure"
	}
	return "unknown"
}

// Kind returns the taxonomy bucket of c.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation, CodeNoToken:
		return KindValidation
	case CodeInvalidCredentials, CodeTokenRequired, CodeTokenInvalid, CodeSessionInvalid:
		return KindAuthentication
	case CodeAccountDeactivated, CodeAccountLocked, CodeForbidden:
		return KindAuthorization
	case CodeUserExists:
		return KindConflict
	case CodeUserNotFound, CodeSessionNotFound:
		return KindNotFound
	case CodeInternal:
		return KindInfrastructure
	}
	return KindInfrastructure
}

// User-facing messages.  Unknown user and wrong password share one message.
const (
	msgValidation         = "Validation failed"
	msgNoToken            = "No token provided"
	msgInvalidCredentials = "Invalid credentials"
	msgTokenRequired      = "Access token required"
	msgTokenInvalid       = "Invalid or expired token"
	msgSessionInvalid     = "Session expired or invalid"
	msgAccountDeactivated = "Account is deactivated"
	msgAccountLocked      = "Account temporarily locked due to too many failed login attempts"
	msgForbidden          = "Insufficient permissions"
	msgUserExists         = "User with this username or email already exists"
	msgUserNotFound       = "User not found"
	msgSessionNotFound    = "Session not found"
	msgInternal           = "Internal server error"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the only error type returned by AuthService operations.
type Error struct {
	Code        Code
	Message     string
	Fields      []FieldError // CodeValidation only
	LockedUntil *time.Time   // CodeAccountLocked only
	Err         error        // internal cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from err.  Anything else is reported as an
// internal error wrapping err.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(code Code, msg string) *Error { return &Error{Code: code, Message: msg} }

func internalError(err error) *Error {
	return &Error{Code: CodeInternal, Message: msgInternal, Err: err}
}

func validationError(fields []FieldError) *Error {
	return &Error{Code: CodeValidation, Message: msgValidation, Fields: fields}
}

func lockedError(until *time.Time) *Error {
	return &Error{Code: CodeAccountLocked, Message: msgAccountLocked, LockedUntil: until}
}
