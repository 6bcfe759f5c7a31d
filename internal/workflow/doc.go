// Package workflow implements a resumable, persisted step sequencer.
//
// A Workflow holds a FIFO queue of step names seeded with its definition's
// initial step. Advance pops one step and dispatches to the handler bound
// to it in a static step→handler table. Handlers report what happens next
// through a tagged Result:
//
//   - Continue(next...): queue zero or more follow-on steps
//   - Pause(): stop driving; the workflow is waiting on an external event
//   - Done(value): terminal; the queue is cleared and value is reported
//
// An empty queue is normal termination (ErrExhausted from Advance).
//
// PERSISTENCE:
//
// Save writes the single queued step (or none) together with the blob the
// workflow's Snapshotter produces, keyed by (definition name, token).
// Saving with more than one queued step fails with ErrBranchingState; a
// workflow must never branch across a pause.
//
// Restore is destructive: it consumes the saved record, so a given
// (name, token) pair can be resumed at most once.
//
// Execution is synchronous. Pausing is persistence plus returning to the
// caller, never a blocked goroutine.
package workflow
