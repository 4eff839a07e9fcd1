package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrIO covers every filesystem failure, including a missing file.
	ErrIO = errors.New("persistence i/o error")

	// ErrSerialization means the stored bytes could not be turned back into a history.
	ErrSerialization = errors.New("persistence serialization error")
)

// PersistenceError wraps a failed save or load. It matches both its Kind
// (ErrIO or ErrSerialization) and the underlying cause with errors.Is, so
// callers can still test for fs.ErrNotExist.
type PersistenceError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{e.Kind, e.Err} }
