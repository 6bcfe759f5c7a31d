package workflow

import "errors"

var (
	// ErrExhausted is returned by Advance when no step is queued.
	// It signals normal termination, not a failure.
	ErrExhausted = errors.New("workflow: exhausted")

	// ErrBranchingState is returned by Save when more than one step is
	// queued. It indicates a bug in the workflow definition.
	ErrBranchingState = errors.New("workflow: cannot save with more than one queued step")

	// ErrUnknownStep is returned when a queued step has no handler.
	ErrUnknownStep = errors.New("workflow: unknown step")
)
