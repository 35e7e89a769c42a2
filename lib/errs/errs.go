// Package errs defines the structured error type shared by schema, codec,
// and value. Every failure the core reports carries a Kind and the dotted
// schema path being processed when it occurred, and wraps its underlying
// cause so callers can still errors.Is/errors.As through to it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// SchemaError covers malformed schemas: duplicate names, invalid
	// constraints, unresolved references.
	SchemaError Kind = iota
	// RangeError covers a value outside a non-extensible numeric
	// constraint, an enumerated value with no matching name, or a
	// character outside its alphabet.
	RangeError
	// ShapeError covers a value whose shape doesn't match its schema:
	// a CHOICE with zero or multiple keys, a SEQUENCE missing a
	// mandatory field, raw bits without a bit length.
	ShapeError
	// SizeError covers a BIT STRING/OCTET STRING/SEQUENCE OF/string
	// length outside a non-extensible size constraint.
	SizeError
	// DecodeError covers malformed input: truncated buffers, reserved
	// or undefined bit patterns, missing fragmentation terminators.
	DecodeError
	// InternalError indicates a bug: a buffer cursor inconsistency or
	// other invariant violation that should never happen in correct code.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case SchemaError:
		return "SchemaError"
	case RangeError:
		return "RangeError"
	case ShapeError:
		return "ShapeError"
	case SizeError:
		return "SizeError"
	case DecodeError:
		return "DecodeError"
	case InternalError:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// Error is the single structured error type produced by this module.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Msg)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// WithPath returns a copy of err with Path set, if err is (or wraps) an
// *Error; the dotted path is built incrementally as the codec descends, so
// this is called once per level with that level's segment prepended.
func WithPath(err error, segment string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	if cp.Path == "" {
		cp.Path = segment
	} else {
		cp.Path = segment + "." + cp.Path
	}
	return &cp
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
