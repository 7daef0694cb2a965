// Package apperr defines the error kinds surfaced at the service boundary.
//
// Handlers branch on Kind rather than on message text:
//
//	switch apperr.KindOf(err) {
//	case apperr.KindConflict:
//		// 409
//	}
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthorized
	KindConflict
	KindStorage
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.msg(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.msg())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.msg(), e.Err)
	default:
		return e.msg()
	}
}

func (e *Error) msg() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Unauthorized(msg string, err error) error {
	return &Error{Kind: KindUnauthorized, Msg: msg, Err: err}
}

func Conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }

// Storage wraps an I/O or decode failure during op.
func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Msg: "storage failure", Err: err}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Msg: "internal failure", Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }
