package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/listflow/internal/model"
)

// Handler executes one step of a workflow.
type Handler func(ctx context.Context) (Result, error)

// Definition is the static shape of a workflow type.
type Definition struct {
	// Name keys persisted state; it must be stable across releases.
	Name string

	// Initial is queued when a workflow is constructed.
	Initial Step

	// Handlers maps every step to its handler. The table is copied at
	// construction and never changes afterwards.
	Handlers map[Step]Handler
}

// Snapshotter converts the attributes a workflow wants to survive a
// restart to and from an opaque blob.
type Snapshotter interface {
	MarshalSnapshot() ([]byte, error)
	UnmarshalSnapshot(data []byte) error
}

// StateStore persists workflow states. Implemented by *store.Store.
type StateStore interface {
	SaveWorkflowState(ctx context.Context, st model.WorkflowState) error
	RestoreWorkflowState(ctx context.Context, name, token string) (*model.WorkflowState, error)
	DiscardWorkflowState(ctx context.Context, name, token string) (bool, error)
}

// Observer is called after every executed step.
type Observer func(step Step, result Result)

// Workflow is one running instance of a Definition.
//
// A Workflow is not safe for concurrent use; it is owned by a single
// caller for the duration of one drive.
type Workflow struct {
	name     string
	handlers map[Step]Handler
	queue    []Step
	states   StateStore
	snap     Snapshotter
	logger   *slog.Logger
	observer Observer
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithObserver registers a per-step observer.
func WithObserver(o Observer) Option {
	return func(w *Workflow) { w.observer = o }
}

// New creates a Workflow with def.Initial queued.
// snap may be nil for workflows without saved attributes.
func New(def Definition, states StateStore, snap Snapshotter, opts ...Option) *Workflow {
	handlers := make(map[Step]Handler, len(def.Handlers))
	for step, h := range def.Handlers {
		handlers[step] = h
	}

	w := &Workflow{
		name:     def.Name,
		handlers: handlers,
		states:   states,
		snap:     snap,
		logger:   slog.Default(),
	}
	if def.Initial != "" {
		w.queue = append(w.queue, def.Initial)
	}

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the definition name.
func (w *Workflow) Name() string {
	return w.name
}

// Push appends steps to the back of the queue.
func (w *Workflow) Push(steps ...Step) {
	w.queue = append(w.queue, steps...)
}

// Pending returns a copy of the queued steps, front first.
func (w *Workflow) Pending() []Step {
	out := make([]Step, len(w.queue))
	copy(out, w.queue)
	return out
}

// Len returns the number of queued steps.
func (w *Workflow) Len() int {
	return len(w.queue)
}

// Clear empties the queue.
func (w *Workflow) Clear() {
	w.queue = w.queue[:0]
}

func (w *Workflow) pop() (Step, bool) {
	if len(w.queue) == 0 {
		return "", false
	}
	step := w.queue[0]
	if len(w.queue) == 1 {
		w.queue = w.queue[:0]
	} else {
		w.queue = w.queue[1:]
	}
	return step, true
}

// Advance pops the front step and runs its handler.
// Returns ErrExhausted if the queue is empty.
func (w *Workflow) Advance(ctx context.Context) (Step, Result, error) {
	step, ok := w.pop()
	if !ok {
		return "", Result{}, ErrExhausted
	}

	h, ok := w.handlers[step]
	if !ok {
		return step, Result{}, fmt.Errorf("%w: %q in workflow %s", ErrUnknownStep, step, w.name)
	}

	w.logger.Debug("workflow step", "workflow", w.name, "step", step)
	res, err := h(ctx)
	if err != nil {
		return step, Result{}, fmt.Errorf("workflow %s: step %s: %w", w.name, step, err)
	}

	switch res.Kind {
	case KindContinue:
		w.Push(res.Next...)
	case KindPause:
	case KindDone:
		w.Clear()
	default:
		return step, Result{}, fmt.Errorf("workflow %s: step %s returned invalid result kind %d", w.name, step, res.Kind)
	}

	if w.observer != nil {
		w.observer(step, res)
	}
	return step, res, nil
}

// Run drives the workflow until the queue is exhausted, a handler pauses,
// or a handler completes it.
func (w *Workflow) Run(ctx context.Context) (Outcome, error) {
	var out Outcome
	for {
		step, res, err := w.Advance(ctx)
		if errors.Is(err, ErrExhausted) {
			out.Status = StatusExhausted
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out.Steps = append(out.Steps, step)

		switch res.Kind {
		case KindPause:
			out.Status = StatusPaused
			return out, nil
		case KindDone:
			out.Status = StatusDone
			out.Value = res.Value
			return out, nil
		}
	}
}

// RunThrough executes steps up to and including stopAfter, collecting each
// handler's result. It also stops on exhaustion, pause or completion.
func (w *Workflow) RunThrough(ctx context.Context, stopAfter Step) ([]Result, error) {
	var results []Result
	for {
		step, res, err := w.Advance(ctx)
		if errors.Is(err, ErrExhausted) {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if step == stopAfter || res.Kind != KindContinue {
			return results, nil
		}
	}
}

// RunUntil executes steps up to but excluding stopBefore, which is left at
// the front of the queue. It also stops on exhaustion, pause or completion.
func (w *Workflow) RunUntil(ctx context.Context, stopBefore Step) ([]Result, error) {
	var results []Result
	for len(w.queue) > 0 && w.queue[0] != stopBefore {
		_, res, err := w.Advance(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Kind != KindContinue {
			break
		}
	}
	return results, nil
}

// Save persists the queued step (at most one) and the snapshot blob under
// (Name, token).
func (w *Workflow) Save(ctx context.Context, token string) error {
	if len(w.queue) > 1 {
		return fmt.Errorf("%w: workflow %s has %d (%v)", ErrBranchingState, w.name, len(w.queue), w.queue)
	}

	st := model.WorkflowState{Name: w.name, Token: token}
	if len(w.queue) == 1 {
		st.Step = string(w.queue[0])
	}
	if w.snap != nil {
		data, err := w.snap.MarshalSnapshot()
		if err != nil {
			return fmt.Errorf("workflow %s: save: %w", w.name, err)
		}
		st.Data = data
	}

	if err := w.states.SaveWorkflowState(ctx, st); err != nil {
		return fmt.Errorf("workflow %s: save: %w", w.name, err)
	}
	w.logger.Debug("workflow saved", "workflow", w.name, "token", token, "step", st.Step)
	return nil
}

// Restore consumes the state saved under (Name, token). The queue is
// cleared either way; if a record was found its step is re-queued and the
// snapshot is applied. Reports whether a record was found.
func (w *Workflow) Restore(ctx context.Context, token string) (bool, error) {
	st, err := w.states.RestoreWorkflowState(ctx, w.name, token)
	if err != nil {
		return false, fmt.Errorf("workflow %s: restore: %w", w.name, err)
	}

	w.Clear()
	if st == nil {
		return false, nil
	}

	if st.Step != "" {
		w.Push(Step(st.Step))
	}
	if w.snap != nil {
		if err := w.snap.UnmarshalSnapshot(st.Data); err != nil {
			return false, fmt.Errorf("workflow %s: restore: %w", w.name, err)
		}
	}
	w.logger.Debug("workflow restored", "workflow", w.name, "token", token, "step", st.Step)
	return true, nil
}

// Discard deletes any state saved under (Name, token).
// Reports whether a record existed.
func (w *Workflow) Discard(ctx context.Context, token string) (bool, error) {
	existed, err := w.states.DiscardWorkflowState(ctx, w.name, token)
	if err != nil {
		return false, fmt.Errorf("workflow %s: discard: %w", w.name, err)
	}
	return existed, nil
}
