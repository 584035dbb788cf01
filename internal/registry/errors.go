package registry

import "errors"

var (
	// ErrHandleFull is returned by Send when the frame does not fit in the
	// handle's remaining budget.
	ErrHandleFull = errors.New("delivery handle full")
	// ErrHandleClosed is returned by Send once the owning connection has torn
	// down.
	ErrHandleClosed = errors.New("delivery handle closed")
)
