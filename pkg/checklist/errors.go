package checklist

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrRead    = errors.New("read error")
	ErrParse   = errors.New("parse error")
	ErrPattern = errors.New("pattern error")
)

// Error codes.
const (
	CodeRead    = "READ_ERROR"
	CodeParse   = "PARSE_ERROR"
	CodePattern = "PATTERN_ERROR"
)

// Error is a typed failure surfaced to the caller of a checklist operation.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeRead:
		return target == ErrRead
	case CodeParse:
		return target == ErrParse
	case CodePattern:
		return target == ErrPattern
	default:
		return false
	}
}

// NewError creates a new Error.
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewReadError reports a source that could not be read or decoded.
func NewReadError(message string, err error) *Error {
	return NewError(CodeRead, message, err)
}

// NewParseError reports input text that could not be ingested.
func NewParseError(message string, err error) *Error {
	return NewError(CodeParse, message, err)
}

// NewPatternError reports a locator pattern that failed to compile.
func NewPatternError(message string, err error) *Error {
	return NewError(CodePattern, message, err)
}

// IsRead checks if the error is a read error.
func IsRead(err error) bool {
	return errors.Is(err, ErrRead)
}

// IsParse checks if the error is a parse error.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsPattern checks if the error is a pattern error.
func IsPattern(err error) bool {
	return errors.Is(err, ErrPattern)
}

// Code returns the error code carried by err, or "" if err is not an *Error.
func Code(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
