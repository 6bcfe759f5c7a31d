// Package registrar is the entry point for list subscriptions.
//
// A Registrar binds the subscription workflow to one mailing list and maps
// every call onto a fresh workflow instance: Register starts one, Confirm
// resumes the one paused under a token, and Discard abandons it.
package registrar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/subscription"
	"github.com/roach88/listflow/internal/workflow"
)

// Result is the outcome of one Register or Confirm call.
//
// Token is empty and TokenOwner is no_one once the subscription has
// completed; Member is non-nil only then.
type Result struct {
	Token      string           `json:"token,omitempty"`
	TokenOwner model.TokenOwner `json:"token_owner"`
	Member     *model.Member    `json:"member,omitempty"`
}

// Registrar registers subscribers to one mailing list.
type Registrar struct {
	list   model.MailingList
	deps   subscription.Deps
	wfOpts []workflow.Option
	logger *slog.Logger
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithWorkflowOptions passes options to every workflow the Registrar runs.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(r *Registrar) { r.wfOpts = append(r.wfOpts, opts...) }
}

// New creates a Registrar for list.
func New(list model.MailingList, deps subscription.Deps, opts ...Option) *Registrar {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registrar{
		list:   list,
		deps:   deps,
		logger: logger.With("list", list.ListID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the mailing list this Registrar serves.
func (r *Registrar) List() model.MailingList {
	return r.list
}

// Register starts a subscription and runs it until it completes or pauses.
func (r *Registrar) Register(ctx context.Context, sub subscription.Subscriber, flags subscription.Flags) (Result, error) {
	w, err := subscription.New(r.list, r.deps, sub, flags, r.wfOpts...)
	if err != nil {
		return Result{}, err
	}
	if _, err := w.Run(ctx); err != nil {
		return Result{}, fmt.Errorf("register: %w", err)
	}
	res := resultOf(w)
	r.logger.Debug("register finished", "token_owner", res.TokenOwner, "subscribed", res.Member != nil)
	return res, nil
}

// Confirm resumes the subscription paused under token.
//
// Returns a NO_SUCH_WORKFLOW error if the token is unknown, already used,
// evicted, or belongs to another list.
func (r *Registrar) Confirm(ctx context.Context, token string) (Result, error) {
	p, err := r.deps.Pendings.Confirm(ctx, token, false)
	if err != nil {
		return Result{}, fmt.Errorf("confirm: %w", err)
	}
	if !r.owns(p) {
		if p == nil {
			// An evicted token must not leave a resumable workflow behind.
			if _, err := r.deps.States.DiscardWorkflowState(ctx, subscription.Name, token); err != nil {
				return Result{}, fmt.Errorf("confirm: %w", err)
			}
		}
		return Result{}, subscription.NewLookupError(token)
	}

	w := subscription.NewRestorable(r.list, r.deps, r.wfOpts...)
	found, err := w.Resume(ctx, token)
	if err != nil {
		return Result{}, fmt.Errorf("confirm: %w", err)
	}
	if !found {
		return Result{}, subscription.NewLookupError(token)
	}
	if _, err := w.Run(ctx); err != nil {
		return Result{}, fmt.Errorf("confirm: %w", err)
	}
	res := resultOf(w)
	r.logger.Debug("confirm finished", "token_owner", res.TokenOwner, "subscribed", res.Member != nil)
	return res, nil
}

// Discard abandons the subscription paused under token, removing both the
// pending token and the saved workflow state.
//
// Returns a NO_SUCH_WORKFLOW error if nothing is pending for token on this
// list. A state left without its pending record is still removed.
func (r *Registrar) Discard(ctx context.Context, token string) error {
	p, err := r.deps.Pendings.Confirm(ctx, token, false)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if p != nil && !r.owns(p) {
		return subscription.NewLookupError(token)
	}

	if p != nil {
		if _, err := r.deps.Pendings.Confirm(ctx, token, true); err != nil {
			return fmt.Errorf("discard: %w", err)
		}
	}
	if _, err := r.deps.States.DiscardWorkflowState(ctx, subscription.Name, token); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if p == nil {
		return subscription.NewLookupError(token)
	}
	r.logger.Info("subscription discarded", "token", token)
	return nil
}

func (r *Registrar) owns(p pending.Pendable) bool {
	return p != nil && p.Type() == subscription.PendableType && p[pending.KeyListID] == r.list.ListID
}

func resultOf(w *subscription.Workflow) Result {
	return Result{
		Token:      w.Token(),
		TokenOwner: w.TokenOwner(),
		Member:     w.Member(),
	}
}
