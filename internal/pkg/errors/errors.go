package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnknownJob indicates a lifecycle operation referenced a job that is
	// not in the jobs table (or whose identity could not be resolved).
	ErrUnknownJob = errors.New("unknown job")
	// ErrStaleState indicates a lifecycle precondition was violated: the
	// persisted status matched neither the expected source state nor the
	// target state of the transition.
	ErrStaleState = errors.New("stale state")
	// ErrSlotBusy indicates a shared output slot stayed occupied beyond the
	// caller's timeout.
	ErrSlotBusy = errors.New("slot busy")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
