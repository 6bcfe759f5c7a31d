package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/pending"
)

// Pendings mints and consumes tokens. Implemented by *pending.Registry.
type Pendings interface {
	Add(ctx context.Context, p pending.Pendable, lifetime time.Duration) (string, error)
	Confirm(ctx context.Context, token string, expunge bool) (pending.Pendable, error)
}

// Identity resolves and updates users and addresses.
// Implemented by *store.Store; lookups return store.ErrNotFound.
type Identity interface {
	GetAddress(ctx context.Context, email string) (*model.Address, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	CreateUser(ctx context.Context, u model.User) error
	CreateAddress(ctx context.Context, a model.Address) error
	LinkAddress(ctx context.Context, email string, userID uuid.UUID) error
	VerifyAddress(ctx context.Context, email string, at time.Time) error
}

// Roster records and queries list membership. Implemented by *store.Store;
// AddMember returns store.ErrConflict for a duplicate.
type Roster interface {
	AddMember(ctx context.Context, m model.Member) error
	IsMember(ctx context.Context, listID, email string, role model.MemberRole) (bool, error)
	Members(ctx context.Context, listID string, role model.MemberRole) ([]model.Member, error)
}

// BanChecker decides whether an address may join a list.
// Implemented by *bans.Checker.
type BanChecker interface {
	IsBanned(ctx context.Context, listID, email string) (bool, error)
}

// Notifier sends the out-of-band messages a paused workflow waits on.
// Delivery failures are logged and never change workflow state.
type Notifier interface {
	SendConfirmation(ctx context.Context, list model.MailingList, token, recipient string) error
	NotifyModerators(ctx context.Context, list model.MailingList, recipients []string, subject, body string) error
}

// Clock supplies wall time for verification and subscription timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
