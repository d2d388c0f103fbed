package protocol

import "fmt"

// Code is a stable, host-facing diagnostic identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Diagnostic codes sent to the host.
const (
	ErrLineTooLong      Code = "line_too_long"
	ErrUnknownMode      Code = "unknown_mode"
	ErrUnknownField     Code = "unknown_field"
	ErrInvalidValue     Code = "invalid_value"
	ErrMissingValue     Code = "missing_value"
	ErrIncompleteBias   Code = "incomplete_bias"
	ErrIncompleteConfig Code = "incomplete_config"
	ErrModeRestarted    Code = "mode_restarted"
	ErrBusy             Code = "busy"
	ErrRunAborted       Code = "run_aborted"
)

// Error carries a code together with the offending field and a detail message.
// Warnings are diagnostics that did not cause the line to be discarded.
type Error struct {
	Code    Code
	Field   string
	Msg     string
	Warning bool
}

func (e *Error) Error() string {
	s := string(e.Code)
	if e.Field != "" {
		s += ": " + e.Field
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *Error) Unwrap() error { return e.Code }

// Line renders the diagnostic the way it is sent to the host.
func (e *Error) Line() string {
	if e.Warning {
		return "warning: " + e.Error()
	}
	return "error: " + e.Error()
}

// Diagnostic returns a non-warning Error for code.
func Diagnostic(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func newError(code Code, field, format string, args ...any) *Error {
	return &Error{Code: code, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func newWarning(code Code, field, format string, args ...any) *Error {
	e := newError(code, field, format, args...)
	e.Warning = true
	return e
}
