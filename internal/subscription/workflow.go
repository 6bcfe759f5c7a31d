package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/workflow"
)

// Name keys persisted subscription workflow states.
const Name = "subscription"

// PendableType is the "type" value of every pendable this workflow mints.
const PendableType = "subscription"

// DefaultTokenLifetime is how long a minted token stays pending.
const DefaultTokenLifetime = 10 * 365 * 24 * time.Hour

// Pendable keys written alongside type and list_id.
const (
	KeyEmail       = "email"
	KeyDisplayName = "display_name"
	KeyWhen        = "when"
	KeyTokenOwner  = "token_owner"
)

// Steps of the subscription workflow. The names are persisted and must not
// change.
const (
	StepSanityChecks          workflow.Step = "sanity_checks"
	StepVerificationChecks    workflow.Step = "verification_checks"
	StepConfirmationChecks    workflow.Step = "confirmation_checks"
	StepModerationChecks      workflow.Step = "moderation_checks"
	StepGetModeratorApproval  workflow.Step = "get_moderator_approval"
	StepSendConfirmation      workflow.Step = "send_confirmation"
	StepSubscribeFromRestored workflow.Step = "subscribe_from_restored"
	StepDoConfirmVerify       workflow.Step = "do_confirm_verify"
	StepDoSubscription        workflow.Step = "do_subscription"
)

// Subscriber is the party asking to join: exactly one of Address or User.
type Subscriber struct {
	Address *model.Address
	User    *model.User
}

// Flags pre-satisfy the out-of-band steps.
type Flags struct {
	PreVerified  bool
	PreConfirmed bool
	PreApproved  bool
}

// Deps are the collaborators a subscription workflow drives.
type Deps struct {
	States   workflow.StateStore
	Pendings Pendings
	Identity Identity
	Roster   Roster
	Bans     BanChecker
	Notifier Notifier

	// Clock defaults to wall time.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// TokenLifetime defaults to DefaultTokenLifetime.
	TokenLifetime time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TokenLifetime <= 0 {
		d.TokenLifetime = DefaultTokenLifetime
	}
	return d
}

// Workflow subscribes one subscriber to one mailing list.
type Workflow struct {
	*workflow.Workflow

	list   model.MailingList
	deps   Deps
	logger *slog.Logger

	key     model.SubscriberKey
	address *model.Address
	user    *model.User
	flags   Flags

	// Identity keys loaded from a snapshot, resolved on demand.
	savedAddress string
	savedUser    string

	token      string
	tokenOwner model.TokenOwner
	member     *model.Member
}

// New creates a workflow for sub with sanity_checks queued.
func New(list model.MailingList, deps Deps, sub Subscriber, flags Flags, opts ...workflow.Option) (*Workflow, error) {
	key, err := subscriberKey(sub)
	if err != nil {
		return nil, err
	}

	w := newWorkflow(list, deps, opts)
	w.key = key
	w.address = sub.Address
	w.user = sub.User
	w.flags = flags
	return w, nil
}

// NewRestorable creates an empty workflow whose state is expected to be
// loaded with Restore.
func NewRestorable(list model.MailingList, deps Deps, opts ...workflow.Option) *Workflow {
	return newWorkflow(list, deps, opts)
}

func newWorkflow(list model.MailingList, deps Deps, opts []workflow.Option) *Workflow {
	deps = deps.withDefaults()
	w := &Workflow{
		list:       list,
		deps:       deps,
		logger:     deps.Logger.With("workflow", Name, "list", list.ListID),
		tokenOwner: model.TokenOwnerNoOne,
	}

	def := workflow.Definition{
		Name:    Name,
		Initial: StepSanityChecks,
		Handlers: map[workflow.Step]workflow.Handler{
			StepSanityChecks:          w.sanityChecks,
			StepVerificationChecks:    w.verificationChecks,
			StepConfirmationChecks:    w.confirmationChecks,
			StepModerationChecks:      w.moderationChecks,
			StepGetModeratorApproval:  w.getModeratorApproval,
			StepSendConfirmation:      w.sendConfirmation,
			StepSubscribeFromRestored: w.subscribeFromRestored,
			StepDoConfirmVerify:       w.doConfirmVerify,
			StepDoSubscription:        w.doSubscription,
		},
	}
	opts = append([]workflow.Option{workflow.WithLogger(deps.Logger)}, opts...)
	w.Workflow = workflow.New(def, deps.States, w, opts...)
	return w
}

func subscriberKey(sub Subscriber) (model.SubscriberKey, error) {
	switch {
	case sub.Address != nil && sub.User != nil:
		return model.SubscriberKey{}, NewInvalidSubscriberError("subscriber must be an address or a user, not both")
	case sub.Address != nil:
		if sub.Address.Email == "" {
			return model.SubscriberKey{}, NewInvalidSubscriberError("address has no email")
		}
		return model.AddressKey(sub.Address.Email), nil
	case sub.User != nil:
		if sub.User.ID == uuid.Nil {
			return model.SubscriberKey{}, NewInvalidSubscriberError("user has no id")
		}
		return model.UserKey(sub.User.ID), nil
	}
	return model.SubscriberKey{}, NewInvalidSubscriberError("subscriber is required")
}

// List returns the target mailing list.
func (w *Workflow) List() model.MailingList { return w.list }

// Token returns the current token, or "" when no one holds one.
func (w *Workflow) Token() string { return w.token }

// TokenOwner returns who is expected to present the current token.
func (w *Workflow) TokenOwner() model.TokenOwner { return w.tokenOwner }

// Member returns the membership created by do_subscription, or nil.
func (w *Workflow) Member() *model.Member { return w.member }

// Address returns the subscriber's resolved address, or nil.
func (w *Workflow) Address() *model.Address { return w.address }

// User returns the subscriber's resolved user, or nil.
func (w *Workflow) User() *model.User { return w.user }

// Flags returns the pre-satisfaction flags.
func (w *Workflow) Flags() Flags { return w.flags }

// Resume restores the workflow paused under token. The presented token
// becomes the current token so the resuming step can expunge it.
// Reports false if nothing was paused under token.
func (w *Workflow) Resume(ctx context.Context, token string) (bool, error) {
	found, err := w.Restore(ctx, token)
	if err != nil || !found {
		return found, err
	}
	w.token = token
	return true, nil
}

type snapshot struct {
	Subscriber   string `json:"subscriber"`
	Address      string `json:"address,omitempty"`
	User         string `json:"user,omitempty"`
	PreVerified  bool   `json:"pre_verified"`
	PreConfirmed bool   `json:"pre_confirmed"`
	PreApproved  bool   `json:"pre_approved"`
	TokenOwner   string `json:"token_owner"`
}

// MarshalSnapshot saves identity keys and flags, never live objects.
func (w *Workflow) MarshalSnapshot() ([]byte, error) {
	s := snapshot{
		Subscriber:   w.key.String(),
		PreVerified:  w.flags.PreVerified,
		PreConfirmed: w.flags.PreConfirmed,
		PreApproved:  w.flags.PreApproved,
		TokenOwner:   string(w.tokenOwner),
	}
	if w.address != nil {
		s.Address = w.address.Email
	}
	if w.user != nil {
		s.User = w.user.ID.String()
	}
	return json.Marshal(s)
}

// UnmarshalSnapshot loads keys and flags. The live subscriber objects are
// dropped and re-resolved by resolveSubscriber.
func (w *Workflow) UnmarshalSnapshot(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode subscription snapshot: %w", err)
	}
	key, err := model.ParseSubscriberKey(s.Subscriber)
	if err != nil {
		return fmt.Errorf("decode subscription snapshot: %w", err)
	}
	owner, err := model.ParseTokenOwner(s.TokenOwner)
	if err != nil {
		return fmt.Errorf("decode subscription snapshot: %w", err)
	}

	w.key = key
	w.flags = Flags{
		PreVerified:  s.PreVerified,
		PreConfirmed: s.PreConfirmed,
		PreApproved:  s.PreApproved,
	}
	w.tokenOwner = owner
	w.address = nil
	w.user = nil
	w.savedAddress = s.Address
	w.savedUser = s.User
	return nil
}
