package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/bans"
	"github.com/roach88/listflow/internal/config"
	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/notify"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/registrar"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/subscription"
	"github.com/roach88/listflow/internal/testutil"
	"github.com/roach88/listflow/internal/workflow"
)

// Harness is the scenario execution engine.
// It drives real registrars with a deterministic clock and fixed tokens.
type Harness struct {
	store      *store.Store
	clock      *testutil.Clock
	pendings   *pending.Registry
	notes      *notify.Recorder
	deps       subscription.Deps
	registrars map[string]*registrar.Registrar
	logger     *slog.Logger
	result     *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Create fresh in-memory database
//  2. Load and apply the list definitions
//  3. Create setup users and addresses
//  4. Execute flow steps with expect validation
//  5. Evaluate assertions
//
// An error is returned only when the scenario could not be executed;
// failed expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	if err := h.executeSetup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		DB:  st.DB(),
		Ctx: ctx,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	var lifetime time.Duration
	if scenario.TokenLifetime != "" {
		d, err := time.ParseDuration(scenario.TokenLifetime)
		if err != nil {
			return nil, fmt.Errorf("token_lifetime: %w", err)
		}
		lifetime = d
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewClock()
	pendings := pending.New(st,
		pending.WithGenerator(pending.NewFixedGenerator(scenario.Tokens...)),
		pending.WithClock(clock),
		pending.WithLogger(logger),
	)
	notes := notify.NewRecorder()

	return &Harness{
		store:    st,
		clock:    clock,
		pendings: pendings,
		notes:    notes,
		deps: subscription.Deps{
			States:        st,
			Pendings:      pendings,
			Identity:      st,
			Roster:        st,
			Bans:          bans.NewChecker(st, bans.WithLogger(logger)),
			Notifier:      notes,
			Clock:         clock,
			Logger:        logger,
			TokenLifetime: lifetime,
		},
		registrars: make(map[string]*registrar.Registrar),
		logger:     logger,
		result:     NewResult(),
	}, nil
}

// executeSetup applies the list definitions and creates setup identities.
func (h *Harness) executeSetup(ctx context.Context, scenario *Scenario) error {
	defs, err := config.ParseLists(scenario.Name+".cue", []byte(scenario.Definitions))
	if err != nil {
		return fmt.Errorf("definitions: %w", err)
	}
	applied, err := config.Apply(ctx, h.store, defs, h.clock.Now())
	if err != nil {
		return fmt.Errorf("apply definitions: %w", err)
	}
	h.logger.Info("definitions applied", "lists", applied.Lists, "roles", applied.Roles, "bans", applied.Bans)

	for i, u := range scenario.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		err = h.store.CreateUser(ctx, model.User{
			ID:               id,
			DisplayName:      u.DisplayName,
			PreferredAddress: u.Preferred,
			CreatedOn:        h.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}

	for i, a := range scenario.Addresses {
		addr := model.Address{
			Email:        a.Email,
			DisplayName:  a.DisplayName,
			RegisteredOn: h.clock.Now(),
		}
		if a.Verified {
			at := h.clock.Now()
			addr.VerifiedOn = &at
		}
		if a.User != "" {
			id, err := uuid.Parse(a.User)
			if err != nil {
				return fmt.Errorf("addresses[%d]: %w", i, err)
			}
			addr.UserID = &id
		}
		if err := h.store.CreateAddress(ctx, addr); err != nil {
			return fmt.Errorf("addresses[%d]: %w", i, err)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step records a call event, the steps the workflow executed, the
// messages it sent and finally a result event.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		h.result.AddTrace(EventCall, step.Action, callFields(step))

		got, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		h.recordMessages()
		h.result.AddTrace(EventResult, step.Action, got)

		h.checkExpect(i, step, got)

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Action,
			"result", got,
		)
	}
	return nil
}

// execute performs one flow step. Subscription errors become the result's
// error field; anything else aborts the scenario.
func (h *Harness) execute(ctx context.Context, step FlowStep) (map[string]string, error) {
	switch step.Action {
	case ActionRegister:
		r, err := h.registrar(ctx, step.List)
		if err != nil {
			return nil, err
		}
		sub, err := h.subscriber(ctx, step)
		if err != nil {
			return nil, err
		}
		res, err := r.Register(ctx, sub, subscription.Flags{
			PreVerified:  step.PreVerified,
			PreConfirmed: step.PreConfirmed,
			PreApproved:  step.PreApproved,
		})
		return resultFields(res, err)

	case ActionConfirm:
		r, err := h.registrar(ctx, step.List)
		if err != nil {
			return nil, err
		}
		res, err := r.Confirm(ctx, step.Token)
		return resultFields(res, err)

	case ActionDiscard:
		r, err := h.registrar(ctx, step.List)
		if err != nil {
			return nil, err
		}
		if err := r.Discard(ctx, step.Token); err != nil {
			return errorFields(err)
		}
		return map[string]string{"discarded": step.Token}, nil

	case ActionEvict:
		n, err := h.pendings.Evict(ctx)
		if err != nil {
			return nil, err
		}
		purged, err := h.store.PurgeOrphanWorkflowStates(ctx, subscription.Name)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"evicted": strconv.Itoa(n),
			"purged":  strconv.FormatInt(purged, 10),
		}, nil

	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return nil, err
		}
		now := h.clock.Advance(d)
		return map[string]string{"now": now.Format(time.RFC3339)}, nil
	}
	return nil, fmt.Errorf("unknown action %q", step.Action)
}

// registrar returns the registrar for listID, creating it on first use.
func (h *Harness) registrar(ctx context.Context, listID string) (*registrar.Registrar, error) {
	if r, ok := h.registrars[listID]; ok {
		return r, nil
	}
	l, err := h.store.GetList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", listID, err)
	}
	r := registrar.New(*l, h.deps, registrar.WithWorkflowOptions(
		workflow.WithLogger(h.logger),
		workflow.WithObserver(h.observe),
	))
	h.registrars[listID] = r
	return r, nil
}

func (h *Harness) subscriber(ctx context.Context, step FlowStep) (subscription.Subscriber, error) {
	if step.Email != "" {
		return subscription.Subscriber{
			Address: &model.Address{Email: step.Email, DisplayName: step.DisplayName},
		}, nil
	}
	id, err := uuid.Parse(step.User)
	if err != nil {
		return subscription.Subscriber{}, fmt.Errorf("user %q: %w", step.User, err)
	}
	u, err := h.store.GetUser(ctx, id)
	if err != nil {
		return subscription.Subscriber{}, fmt.Errorf("user %s: %w", id, err)
	}
	return subscription.Subscriber{User: u}, nil
}

// observe records an executed workflow step and the messages it sent.
func (h *Harness) observe(step workflow.Step, res workflow.Result) {
	fields := map[string]string{"kind": res.Kind.String()}
	if len(res.Next) > 0 {
		next := make([]string, len(res.Next))
		for i, s := range res.Next {
			next[i] = string(s)
		}
		fields["next"] = strings.Join(next, ",")
	}
	h.result.AddTrace(EventStep, string(step), fields)
	h.recordMessages()
}

func (h *Harness) recordMessages() {
	for _, m := range h.notes.Drain() {
		h.result.AddTrace(EventMessage, string(m.Kind), map[string]string{
			"sender":  m.Sender,
			"to":      strings.Join(m.Recipients, ","),
			"subject": m.Subject,
		})
	}
}

// checkExpect validates a step's result against its expect clause.
func (h *Harness) checkExpect(index int, step FlowStep, got map[string]string) {
	if _, wantErr := step.Expect["error"]; !wantErr && got["error"] != "" {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error %s", index, step.Action, got["error"]))
		return
	}

	keys := make([]string, 0, len(step.Expect))
	for k := range step.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if want := step.Expect[k]; got[k] != want {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: %s = %q, expected %q", index, step.Action, k, got[k], want))
		}
	}
}

func callFields(step FlowStep) map[string]string {
	fields := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	set("list", step.List)
	set("email", step.Email)
	set("user", step.User)
	set("token", step.Token)
	set("duration", step.Duration)
	if step.PreVerified {
		fields["pre_verified"] = "true"
	}
	if step.PreConfirmed {
		fields["pre_confirmed"] = "true"
	}
	if step.PreApproved {
		fields["pre_approved"] = "true"
	}
	return fields
}

// resultFields flattens a registrar result. Member IDs are random and left
// out so that traces stay deterministic.
func resultFields(res registrar.Result, err error) (map[string]string, error) {
	if err != nil {
		return errorFields(err)
	}
	fields := map[string]string{"token_owner": string(res.TokenOwner)}
	if res.Token != "" {
		fields["token"] = res.Token
	}
	if res.Member != nil {
		fields["member"] = res.Member.Email
	}
	return fields, nil
}

func errorFields(err error) (map[string]string, error) {
	var serr *subscription.Error
	if !errors.As(err, &serr) {
		return nil, err
	}
	return map[string]string{"error": string(serr.Code)}, nil
}
