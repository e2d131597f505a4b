package game

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrStore          = errors.New("store failure")
	ErrAlreadyDecided = errors.New("challenge already decided")
	ErrCredentials    = errors.New("invalid credentials")
)

// Error is a failure that ends a transition before its state write commits,
// or that reports why the write could not happen.
type Error struct {
	Kind error  // one of the Err* kinds above
	Op   string // operation that failed, e.g. "decide challenge"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func notFound(op, entity string, id int64) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: fmt.Errorf("%s %d", entity, id)}
}

func storeFailure(op string, err error) error {
	return &Error{Kind: ErrStore, Op: op, Err: err}
}
