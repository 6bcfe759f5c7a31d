package registrar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/listflow/internal/bans"
	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/notify"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/subscription"
	"github.com/roach88/listflow/internal/testutil"
	"github.com/roach88/listflow/internal/workflow"
)

type env struct {
	store    *store.Store
	pendings *pending.Registry
	bans     *bans.Checker
	notes    *notify.Recorder
	clock    *testutil.Clock
	deps     subscription.Deps
}

func setup(t *testing.T) *env {
	t.Helper()
	s := testutil.OpenStore(t)
	clock := testutil.NewClock()
	e := &env{
		store:    s,
		pendings: pending.New(s, pending.WithClock(clock)),
		bans:     bans.NewChecker(s),
		notes:    notify.NewRecorder(),
		clock:    clock,
	}
	e.deps = subscription.Deps{
		States:   s,
		Pendings: e.pendings,
		Identity: s,
		Roster:   s,
		Bans:     e.bans,
		Notifier: e.notes,
		Clock:    clock,
	}
	return e
}

func (e *env) registrar(t *testing.T, listID string, policy model.SubscriptionPolicy, opts ...Option) *Registrar {
	t.Helper()
	l := model.MailingList{
		ListID:             listID,
		PostingAddress:     "list@" + listID,
		DisplayName:        listID,
		SubscriptionPolicy: policy,
		AdminImmedNotify:   true,
	}
	require.NoError(t, e.store.PutList(context.Background(), l))
	return New(l, e.deps, opts...)
}

func (e *env) address(t *testing.T, email string, verified bool) *model.Address {
	t.Helper()
	a := model.Address{Email: email, RegisteredOn: e.clock.Now()}
	if verified {
		at := e.clock.Now()
		a.VerifiedOn = &at
	}
	require.NoError(t, e.store.CreateAddress(context.Background(), a))
	return &a
}

func (e *env) assertEmpty(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	p, err := e.store.CountPending(ctx)
	require.NoError(t, err)
	s, err := e.store.CountWorkflowStates(ctx)
	require.NoError(t, err)
	assert.Zero(t, p, "pending entries")
	assert.Zero(t, s, "workflow states")
}

func TestConfirmThenModerate_HappyPath(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r := e.registrar(t, "ant.example.com", model.PolicyConfirmThenModerate)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)
	assert.Equal(t, model.TokenOwnerSubscriber, res.TokenOwner)
	require.NotEmpty(t, res.Token)
	assert.Nil(t, res.Member)
	subscriberToken := res.Token

	res, err = r.Confirm(ctx, subscriberToken)
	require.NoError(t, err)
	assert.Equal(t, model.TokenOwnerModerator, res.TokenOwner)
	require.NotEmpty(t, res.Token)
	assert.NotEqual(t, subscriberToken, res.Token)
	assert.Nil(t, res.Member)
	moderatorToken := res.Token

	_, err = r.Confirm(ctx, subscriberToken)
	require.Error(t, err)
	assert.True(t, subscription.IsLookupError(err), "subscriber token cannot be replayed")

	res, err = r.Confirm(ctx, moderatorToken)
	require.NoError(t, err)
	assert.Empty(t, res.Token)
	assert.Equal(t, model.TokenOwnerNoOne, res.TokenOwner)
	require.NotNil(t, res.Member)
	assert.Equal(t, "anne@example.com", res.Member.Email)

	_, err = r.Confirm(ctx, moderatorToken)
	assert.True(t, subscription.IsLookupError(err))
	e.assertEmpty(t)
}

func TestOpenPolicy_CompletesSynchronously(t *testing.T) {
	e := setup(t)
	r := e.registrar(t, "ant.example.com", model.PolicyOpen)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(context.Background(), subscription.Subscriber{Address: addr}, subscription.Flags{PreVerified: true})
	require.NoError(t, err)
	assert.Empty(t, res.Token)
	assert.Equal(t, model.TokenOwnerNoOne, res.TokenOwner)
	require.NotNil(t, res.Member)
	assert.Equal(t, "anne@example.com", res.Member.Email)
	e.assertEmpty(t)
}

func TestBan_ShortCircuits(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		entry string
	}{
		{"global exact", "", "anne@example.com"},
		{"global pattern", "", `^anne@`},
		{"list exact", "ant.example.com", "anne@example.com"},
		{"list pattern", "ant.example.com", `^.*@example\.com$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			ctx := context.Background()
			r := e.registrar(t, "ant.example.com", model.PolicyConfirmThenModerate)
			require.NoError(t, e.bans.Ban(ctx, tt.scope, tt.entry))
			addr := e.address(t, "anne@example.com", false)

			for _, flags := range []subscription.Flags{
				{},
				{PreVerified: true, PreConfirmed: true, PreApproved: true},
			} {
				_, err := r.Register(ctx, subscription.Subscriber{Address: addr}, flags)
				require.Error(t, err)
				assert.True(t, subscription.IsBannedError(err))
			}
			e.assertEmpty(t)
			assert.Empty(t, e.notes.Messages())
		})
	}
}

func TestBan_UnknownAddressNotRegistered(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	require.NoError(t, e.bans.Ban(ctx, "", `^troll@`))

	_, err := r.Register(ctx, subscription.Subscriber{Address: &model.Address{Email: "Troll@Example.com"}}, subscription.Flags{})
	require.Error(t, err)
	assert.True(t, subscription.IsBannedError(err))

	_, err = e.store.GetAddress(ctx, "troll@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
	e.assertEmpty(t)
}

var errSaveFailed = errors.New("disk full")

// failingStates fails every SaveWorkflowState after the first ok calls.
type failingStates struct {
	*store.Store
	ok    int
	calls int
}

func (f *failingStates) SaveWorkflowState(ctx context.Context, st model.WorkflowState) error {
	f.calls++
	if f.calls > f.ok {
		return errSaveFailed
	}
	return f.Store.SaveWorkflowState(ctx, st)
}

func TestRegister_SaveFailureLeavesNoToken(t *testing.T) {
	for _, policy := range []model.SubscriptionPolicy{model.PolicyConfirm, model.PolicyModerate} {
		t.Run(string(policy), func(t *testing.T) {
			e := setup(t)
			e.deps.States = &failingStates{Store: e.store}
			r := e.registrar(t, "ant.example.com", policy)
			addr := e.address(t, "anne@example.com", true)

			_, err := r.Register(context.Background(), subscription.Subscriber{Address: addr}, subscription.Flags{})
			require.ErrorIs(t, err, errSaveFailed)
			e.assertEmpty(t)
			assert.Empty(t, e.notes.Messages())
		})
	}
}

func TestConfirm_SaveFailureLeavesNoToken(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.deps.States = &failingStates{Store: e.store, ok: 1}
	r := e.registrar(t, "ant.example.com", model.PolicyConfirmThenModerate)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)

	_, err = r.Confirm(ctx, res.Token)
	require.ErrorIs(t, err, errSaveFailed)
	e.assertEmpty(t)
}

func TestConfirm_UnknownToken(t *testing.T) {
	e := setup(t)
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)

	_, err := r.Confirm(context.Background(), "0000000000000000000000000000000000000000")
	require.Error(t, err)
	assert.True(t, subscription.IsLookupError(err))
}

func TestConfirm_OtherListToken(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ant := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	bee := e.registrar(t, "bee.example.com", model.PolicyConfirm)
	addr := e.address(t, "anne@example.com", false)

	res, err := ant.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)

	_, err = bee.Confirm(ctx, res.Token)
	assert.True(t, subscription.IsLookupError(err))
	assert.True(t, subscription.IsLookupError(bee.Discard(ctx, res.Token)))

	res, err = ant.Confirm(ctx, res.Token)
	require.NoError(t, err)
	assert.NotNil(t, res.Member, "the token is still valid on its own list")
}

func TestConfirm_EvictedTokenIsDead(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.deps.TokenLifetime = time.Hour
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	n, err := e.pendings.Evict(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Confirm(ctx, res.Token)
	assert.True(t, subscription.IsLookupError(err))
	e.assertEmpty(t)
}

func TestConfirm_ExpiredButNotEvictedStillWorks(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.deps.TokenLifetime = time.Hour
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	res, err = r.Confirm(ctx, res.Token)
	require.NoError(t, err)
	assert.NotNil(t, res.Member)
}

func TestConfirm_ConcurrentSingleWinner(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		members int
		lookups int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Confirm(ctx, res.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && out.Member != nil:
				members++
			case subscription.IsLookupError(err):
				lookups++
			default:
				t.Errorf("unexpected result: %+v, %v", out, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, members)
	assert.Equal(t, n-1, lookups)
}

func TestDiscard(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r := e.registrar(t, "ant.example.com", model.PolicyModerate)
	addr := e.address(t, "anne@example.com", true)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)
	assert.Equal(t, model.TokenOwnerModerator, res.TokenOwner)

	require.NoError(t, r.Discard(ctx, res.Token))
	e.assertEmpty(t)

	err = r.Discard(ctx, res.Token)
	assert.True(t, subscription.IsLookupError(err))

	_, err = r.Confirm(ctx, res.Token)
	assert.True(t, subscription.IsLookupError(err))

	ok, err := e.store.IsMember(ctx, "ant.example.com", "anne@example.com", model.RoleMember)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiscard_StateWithoutPendingIsLookupError(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	r := e.registrar(t, "ant.example.com", model.PolicyConfirm)
	addr := e.address(t, "anne@example.com", false)

	res, err := r.Register(ctx, subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)
	_, err = e.pendings.Confirm(ctx, res.Token, true)
	require.NoError(t, err)

	err = r.Discard(ctx, res.Token)
	assert.True(t, subscription.IsLookupError(err))
	e.assertEmpty(t)
}

func TestRegister_ObserverSeesSteps(t *testing.T) {
	e := setup(t)
	var steps []workflow.Step
	observe := func(step workflow.Step, _ workflow.Result) { steps = append(steps, step) }
	r := e.registrar(t, "ant.example.com", model.PolicyOpen, WithWorkflowOptions(workflow.WithObserver(observe)))
	addr := e.address(t, "anne@example.com", true)

	_, err := r.Register(context.Background(), subscription.Subscriber{Address: addr}, subscription.Flags{})
	require.NoError(t, err)
	assert.Equal(t, []workflow.Step{
		subscription.StepSanityChecks,
		subscription.StepVerificationChecks,
		subscription.StepConfirmationChecks,
		subscription.StepDoSubscription,
	}, steps)
}

func TestRegister_InvalidSubscriber(t *testing.T) {
	e := setup(t)
	r := e.registrar(t, "ant.example.com", model.PolicyOpen)

	_, err := r.Register(context.Background(), subscription.Subscriber{}, subscription.Flags{})
	assert.True(t, subscription.IsContractError(err))
}
