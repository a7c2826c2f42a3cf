package routecache

import (
	"errors"
	"fmt"
)

// ErrMiss is matched by every ReadError. Callers chain to the fallback
// routes on a miss.
var ErrMiss = errors.New("cache miss")

// ReadError is returned when a cached route is missing or cannot be
// decoded, e.g. after a truncated write.
type ReadError struct {
	Key  string
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read cached route %s from %s: %v", e.Key, e.Path, e.Err)
}

func (e *ReadError) Unwrap() []error { return []error{ErrMiss, e.Err} }

// WriteError is returned when a route cannot be persisted. The index is
// not updated for the failed route.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write cached route to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
