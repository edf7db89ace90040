package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind int

const (
	// ErrInternal is an unexpected engine failure.
	ErrInternal ErrorKind = iota
	// ErrInvalidArgument is a request the engine rejected as malformed.
	ErrInvalidArgument
	// ErrNotFound is a missing file, process, symbol or variable.
	ErrNotFound
	// ErrSyntax is an expression that does not parse.
	ErrSyntax
	// ErrUnsupported is an operation this engine version cannot perform.
	ErrUnsupported
	// ErrProcessGone is an operation on a process that no longer exists.
	ErrProcessGone
)

// Error is an engine failure converted at the engine boundary.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Errorf returns a new *Error.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, ErrInternal for errors that do not come
// from the engine.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}
