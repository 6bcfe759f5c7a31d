package subscription

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/listflow/internal/bans"
	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/notify"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/testutil"
)

type fixture struct {
	store    *store.Store
	pendings *pending.Registry
	bans     *bans.Checker
	notes    *notify.Recorder
	clock    *testutil.Clock
	deps     Deps
}

func newFixture(t *testing.T, tokens ...string) *fixture {
	t.Helper()
	s := testutil.OpenStore(t)
	clock := testutil.NewClock()

	opts := []pending.Option{pending.WithClock(clock)}
	if len(tokens) > 0 {
		opts = append(opts, pending.WithGenerator(pending.NewFixedGenerator(tokens...)))
	}

	f := &fixture{
		store:    s,
		pendings: pending.New(s, opts...),
		bans:     bans.NewChecker(s),
		notes:    notify.NewRecorder(),
		clock:    clock,
	}
	f.deps = Deps{
		States:   s,
		Pendings: f.pendings,
		Identity: s,
		Roster:   s,
		Bans:     f.bans,
		Notifier: f.notes,
		Clock:    clock,
	}
	return f
}

func (f *fixture) list(t *testing.T, policy model.SubscriptionPolicy) model.MailingList {
	t.Helper()
	l := model.MailingList{
		ListID:             "ant.example.com",
		PostingAddress:     "ant@example.com",
		DisplayName:        "Ant",
		SubscriptionPolicy: policy,
		AdminImmedNotify:   true,
	}
	require.NoError(t, f.store.PutList(context.Background(), l))
	return l
}

func (f *fixture) address(t *testing.T, email string, verified bool) *model.Address {
	t.Helper()
	a := model.Address{Email: email, DisplayName: "Anne Person", RegisteredOn: f.clock.Now()}
	if verified {
		at := f.clock.Now()
		a.VerifiedOn = &at
	}
	require.NoError(t, f.store.CreateAddress(context.Background(), a))
	return &a
}

func (f *fixture) user(t *testing.T, preferred string) *model.User {
	t.Helper()
	ctx := context.Background()
	u := model.User{ID: uuid.New(), DisplayName: "Anne Person", CreatedOn: f.clock.Now()}
	require.NoError(t, f.store.CreateUser(ctx, u))
	if preferred != "" {
		require.NoError(t, f.store.LinkAddress(ctx, preferred, u.ID))
		require.NoError(t, f.store.SetPreferredAddress(ctx, u.ID, preferred))
		u.PreferredAddress = model.NormalizeEmail(preferred)
	}
	return &u
}

func (f *fixture) addRole(t *testing.T, listID, email string, role model.MemberRole) {
	t.Helper()
	require.NoError(t, f.store.AddMember(context.Background(), model.Member{
		ID:           uuid.New(),
		ListID:       listID,
		Email:        email,
		UserID:       uuid.New(),
		Role:         role,
		SubscribedBy: model.SubscriberAddress,
		SubscribedOn: f.clock.Now(),
	}))
}

func (f *fixture) counts(t *testing.T) (pendings, states int) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	s, err := f.store.CountWorkflowStates(ctx)
	require.NoError(t, err)
	return p, s
}
