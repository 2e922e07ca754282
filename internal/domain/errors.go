package domain

import (
	"errors"
	"fmt"
)

// Code identifies a failure class carried across component boundaries and
// surfaced verbatim over the service boundary.
type Code string

const (
	// Environmental failures - the GUI or OS prerequisites are not satisfiable.
	CodeWindowLost          Code = "WindowLost"
	CodeTargetGuiNotRunning Code = "TargetGuiNotRunning"
	CodeCapsLockUnavailable Code = "CapsLockUnavailable"

	// Transient failures - the operation might succeed if retried after a pause.
	CodeInputVerificationFailed Code = "InputVerificationFailed"
	CodeNavigationFailed        Code = "NavigationFailed"
	CodeExportNotProduced       Code = "ExportNotProduced"
	CodeDeadlineExceeded        Code = "DeadlineExceeded"

	// Contractual failures - caller-side errors rejected at the service surface.
	CodeInvalidTradeIntent Code = "InvalidTradeIntent"

	// Saturation - the automation queue is full.
	CodeOverloaded Code = "Overloaded"

	// Data-shape failures - a produced CSV did not match the expected schema.
	CodeExportParseFailed Code = "ExportParseFailed"

	// Balance scraping could not resolve enough fields.
	CodeBalanceUnavailable Code = "BalanceUnavailable"
)

// Error is a typed failure. Components return these instead of ad-hoc error
// strings so the scheduler and the service surface can act on the code.
type Error struct {
	Code   Code
	Detail string
	Err    error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error with a human-readable detail.
func NewError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Errorf creates a typed error with a formatted detail.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// WrapError creates a typed error wrapping a cause.
func WrapError(code Code, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// CodeOf extracts the typed code from an error chain. Untyped errors map to
// an empty code; callers treat those as internal failures.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// DetailOf extracts the human-readable detail from an error chain, falling
// back to the plain error string for untyped errors.
func DetailOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
