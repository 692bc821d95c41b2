// Package apperr classifies upload failures so that HTTP handlers can map
// them onto a status code and a caller-visible message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of an upload failure.
type Kind int

const (
	// Unexpected covers I/O and environment failures. It is the zero value so
	// that unclassified errors are reported as server errors.
	Unexpected Kind = iota
	// InvalidInputFormat is a wrong extension, missing file or bad CSV shape.
	InvalidInputFormat
	// StructuralMismatch is a resolved column missing from a data row.
	StructuralMismatch
	// ParseFailure means the waveform parser rejected the record files.
	ParseFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInputFormat:
		return "invalid_input_format"
	case StructuralMismatch:
		return "structural_mismatch"
	case ParseFailure:
		return "parse_failure"
	default:
		return "unexpected"
	}
}

// Status returns the HTTP status code used to report errors of kind k.
func (k Kind) Status() int {
	if k == Unexpected {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// Error is a classified failure. Message is shown to the caller as the
// "error" field and Details, when set, as the "details" field.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithDetails sets Details and returns e.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// As extracts the classified error from err. Unclassified errors are
// returned as Unexpected with the cause string as the message.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: Unexpected, Message: err.Error(), Err: err}
}

// KindOf returns the Kind of err, or Unexpected if it carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unexpected
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
