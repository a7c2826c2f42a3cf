package routing

import (
	"errors"
	"fmt"
)

// ErrNoRoute is returned by lookups when no route matches and neither
// the not_found nor the wildcard handler is cached.
var ErrNoRoute = errors.New("no route")

var (
	errNoCache = errors.New("routing: cache not set")
	errClosed  = errors.New("routing: closed")
)

type reloadError string

func (e reloadError) Error() string { return string(e) }

var (
	errSaveFailed    = reloadError("save_failed")
	errCleanupFailed = reloadError("cleanup_failed")
)

func wrapReloadError(reason reloadError, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", reason, err)
}
