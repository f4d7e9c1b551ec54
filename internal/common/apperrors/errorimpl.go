package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete Error implementation.
type appError struct {
	msg        string  // primary message
	base       error   // template this error was derived from
	causes     []error // attached causes, oldest first
	statuscode int     // HTTP status code
}

// New creates a root-level error with the given message. Packages declare
// their sentinels with this and derive everything else from them.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by every attached cause.
func (e *appError) ErrorAll() string {
	if len(e.causes) == 0 {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.causes {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the template error so errors.Is matches any ancestor.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns the attached causes in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.causes
}

// New derives a fresh error from the current one. The result matches the
// receiver (and its ancestors) under errors.Is but starts a clean message.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

// Msg derives an error with a new message, wrapping the receiver as a cause.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		causes:     append([]error{e}, e.causes...),
		statuscode: e.statuscode,
	}
}

// MsgErr derives an error with a new message and extra causes.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		causes:     append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

// Err derives an error that keeps the current message and attaches causes.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		causes:     append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

// SetStatusCode returns a copy with the given HTTP status code.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

// Is matches the target against the template chain and the attached causes.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.causes {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
