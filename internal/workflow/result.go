package workflow

import "fmt"

// Step names one handler of a workflow definition.
type Step string

// Kind tags a handler Result.
type Kind int

const (
	// KindContinue queues Result.Next and keeps driving.
	KindContinue Kind = iota + 1
	// KindPause stops driving until the workflow is restored.
	KindPause
	// KindDone ends the workflow with Result.Value.
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindPause:
		return "pause"
	case KindDone:
		return "done"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is what a handler decided.
type Result struct {
	Kind  Kind
	Next  []Step
	Value any
}

// Continue schedules the given steps, in order, after the current one.
func Continue(next ...Step) Result {
	return Result{Kind: KindContinue, Next: next}
}

// Pause stops the driver loop. The handler is responsible for queueing the
// resume step and saving state before returning it.
func Pause() Result {
	return Result{Kind: KindPause}
}

// Done terminates the workflow with value.
func Done(value any) Result {
	return Result{Kind: KindDone, Value: value}
}

// Status is how a Run ended.
type Status int

const (
	// StatusExhausted means the queue ran empty.
	StatusExhausted Status = iota + 1
	// StatusPaused means a handler returned Pause.
	StatusPaused
	// StatusDone means a handler returned Done.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusExhausted:
		return "exhausted"
	case StatusPaused:
		return "paused"
	case StatusDone:
		return "done"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome summarizes one Run.
type Outcome struct {
	Status Status
	Value  any    // set when Status is StatusDone
	Steps  []Step // steps executed, in order
}
