package flow

import "github.com/pkg/errors"

var (
	// ErrInvalidValue reports caller misuse: a nil handler or hook, an unknown
	// handler key, or a non-positive buffer size.
	ErrInvalidValue = errors.New("invalid value")

	// ErrRunning is returned when configuring or starting a flow that has
	// already been started.
	ErrRunning = errors.New("reception flow already started")

	// ErrStopped is returned by operations on a flow that has been stopped,
	// including blocking pulls interrupted by Stop.
	ErrStopped = errors.New("reception flow stopped")
)
