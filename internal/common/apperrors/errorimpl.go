package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete Error. Derivation methods never mutate the
// receiver; they hand back copies so package-level error values stay
// immutable templates.
type appError struct {
	msg        string
	base       error   // template error, for errors.Is chains
	wrapped    []error // additional wrapped errors
	statuscode int
	expand     bool
}

// New creates a root-level error with the given message.
func New(msg string) Error {
	return &appError{msg: msg}
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by every wrapped error when
// expansion is enabled, otherwise just the message.
func (e *appError) ErrorAll() string {
	if !e.expand {
		return e.msg
	}
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrapped {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

// New derives a fresh error from the current one. The result carries the new
// message and inherits the status code; the current error becomes its base so
// errors.Is still matches the template.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

// Msg derives an error with a new message that wraps the current error.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statuscode: e.statuscode,
	}
}

// MsgErr derives an error with a new message wrapping the current error and
// any extras.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

// Err keeps the current message and attaches additional errors.
func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append([]error{e}, errs...),
		statuscode: e.statuscode,
	}
}

func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

func (e *appError) SetExpandError(flag bool) Error {
	cp := *e
	cp.expand = flag
	return &cp
}

// Is matches against the base template and every wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrapped {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
