package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
	"github.com/roach88/listflow/internal/pending"
	"github.com/roach88/listflow/internal/store"
	"github.com/roach88/listflow/internal/workflow"
)

func (w *Workflow) sanityChecks(ctx context.Context) (workflow.Result, error) {
	// A user subscribes through their preferred address, which must already
	// exist. A bare address is only registered once it passes the ban check.
	byUser := w.address == nil
	if byUser {
		if err := w.resolveAddress(ctx); err != nil {
			return workflow.Result{}, err
		}
	}

	email := model.NormalizeEmail(w.address.Email)
	banned, err := w.deps.Bans.IsBanned(ctx, w.list.ListID, email)
	if err != nil {
		return workflow.Result{}, fmt.Errorf("check bans: %w", err)
	}
	if banned {
		w.logger.Info("subscription rejected: banned", "email", email)
		return workflow.Result{}, NewBannedError(w.list.ListID, email)
	}

	if !byUser {
		if err := w.resolveAddress(ctx); err != nil {
			return workflow.Result{}, err
		}
	}
	email = w.address.Email

	member, err := w.deps.Roster.IsMember(ctx, w.list.ListID, email, model.RoleMember)
	if err != nil {
		return workflow.Result{}, fmt.Errorf("check membership: %w", err)
	}
	if member {
		return workflow.Result{}, NewAlreadySubscribedError(w.list.ListID, email)
	}

	if err := w.attachUser(ctx); err != nil {
		return workflow.Result{}, err
	}
	return workflow.Continue(StepVerificationChecks), nil
}

// resolveAddress loads the subscriber's address record, registering an
// unknown address and following a user's preferred address.
func (w *Workflow) resolveAddress(ctx context.Context) error {
	if w.address == nil {
		if w.user == nil {
			return NewInvalidSubscriberError("subscriber is required")
		}
		if w.user.PreferredAddress == "" {
			return NewMissingPreferredAddressError(w.user.ID.String())
		}
		addr, err := w.deps.Identity.GetAddress(ctx, w.user.PreferredAddress)
		if errors.Is(err, store.ErrNotFound) {
			return NewMissingPreferredAddressError(w.user.ID.String())
		}
		if err != nil {
			return fmt.Errorf("load preferred address: %w", err)
		}
		w.address = addr
		return nil
	}

	addr, err := w.deps.Identity.GetAddress(ctx, w.address.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		a := *w.address
		a.Email = model.NormalizeEmail(a.Email)
		if a.RegisteredOn.IsZero() {
			a.RegisteredOn = w.deps.Clock.Now()
		}
		a.UserID = nil
		if err := w.deps.Identity.CreateAddress(ctx, a); err != nil {
			return fmt.Errorf("register address: %w", err)
		}
		w.address = &a
	case err != nil:
		return fmt.Errorf("load address: %w", err)
	default:
		w.address = addr
	}
	return nil
}

// attachUser makes sure the address is owned by a user, creating one if
// the address is unlinked.
func (w *Workflow) attachUser(ctx context.Context) error {
	if w.user != nil {
		return nil
	}
	if w.address.UserID != nil {
		u, err := w.deps.Identity.GetUser(ctx, *w.address.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		w.user = u
		return nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}
	u := model.User{
		ID:          id,
		DisplayName: w.address.DisplayName,
		CreatedOn:   w.deps.Clock.Now(),
	}
	if err := w.deps.Identity.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := w.deps.Identity.LinkAddress(ctx, w.address.Email, id); err != nil {
		return fmt.Errorf("link address: %w", err)
	}
	w.address.UserID = &id
	w.user = &u
	w.logger.Debug("user created for address", "email", w.address.Email, "user", id)
	return nil
}

func (w *Workflow) verificationChecks(ctx context.Context) (workflow.Result, error) {
	if w.address.Verified() {
		return workflow.Continue(StepConfirmationChecks), nil
	}
	if w.flags.PreVerified {
		if err := w.verify(ctx); err != nil {
			return workflow.Result{}, err
		}
		return workflow.Continue(StepConfirmationChecks), nil
	}
	return workflow.Continue(StepSendConfirmation), nil
}

func (w *Workflow) confirmationChecks(ctx context.Context) (workflow.Result, error) {
	policy := w.list.SubscriptionPolicy
	switch policy {
	case model.PolicyOpen:
		return workflow.Continue(StepDoSubscription), nil
	case model.PolicyModerate:
		return workflow.Continue(StepModerationChecks), nil
	case model.PolicyConfirm, model.PolicyConfirmThenModerate:
		if !w.flags.PreConfirmed {
			return workflow.Continue(StepSendConfirmation), nil
		}
		if policy.RequiresModeration() {
			return workflow.Continue(StepModerationChecks), nil
		}
		return workflow.Continue(StepDoSubscription), nil
	}
	return workflow.Result{}, fmt.Errorf("list %s: unknown subscription policy %q", w.list.ListID, policy)
}

func (w *Workflow) moderationChecks(ctx context.Context) (workflow.Result, error) {
	if w.flags.PreApproved {
		return workflow.Continue(StepDoSubscription), nil
	}
	return workflow.Continue(StepGetModeratorApproval), nil
}

func (w *Workflow) getModeratorApproval(ctx context.Context) (workflow.Result, error) {
	if err := w.pauseFor(ctx, model.TokenOwnerModerator, StepSubscribeFromRestored); err != nil {
		return workflow.Result{}, err
	}
	w.logger.Info("subscription held for moderator approval", "email", w.address.Email, "token", w.token)

	if w.list.AdminImmedNotify {
		w.notifyModerators(ctx)
	}
	return workflow.Pause(), nil
}

func (w *Workflow) notifyModerators(ctx context.Context) {
	recipients, err := w.moderatorRecipients(ctx)
	if err != nil {
		w.logger.Warn("moderator lookup failed", "error", err)
		return
	}
	if len(recipients) == 0 {
		recipients = []string{w.list.OwnerAddress()}
	}

	subject := fmt.Sprintf("New subscription request to %s from %s", w.list.DisplayName, w.address.Email)
	body := fmt.Sprintf(
		"Your authorization is required for a mailing list subscription request approval:\n\n"+
			"    For:  %s\n    List: %s\n\nTo approve, confirm token %s.\n",
		w.address.Email, w.list.PostingAddress, w.token)
	if err := w.deps.Notifier.NotifyModerators(ctx, w.list, recipients, subject, body); err != nil {
		w.logger.Warn("moderator notification failed", "error", err)
	}
}

// moderatorRecipients returns owner then moderator addresses, deduplicated.
func (w *Workflow) moderatorRecipients(ctx context.Context) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, role := range []model.MemberRole{model.RoleOwner, model.RoleModerator} {
		members, err := w.deps.Roster.Members(ctx, w.list.ListID, role)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seen[m.Email] {
				seen[m.Email] = true
				out = append(out, m.Email)
			}
		}
	}
	return out, nil
}

func (w *Workflow) sendConfirmation(ctx context.Context) (workflow.Result, error) {
	if err := w.pauseFor(ctx, model.TokenOwnerSubscriber, StepDoConfirmVerify); err != nil {
		return workflow.Result{}, err
	}
	w.logger.Info("subscription awaiting confirmation", "email", w.address.Email, "token", w.token)

	if err := w.deps.Notifier.SendConfirmation(ctx, w.list, w.token, w.address.Email); err != nil {
		w.logger.Warn("confirmation notification failed", "email", w.address.Email, "error", err)
	}
	return workflow.Pause(), nil
}

func (w *Workflow) subscribeFromRestored(ctx context.Context) (workflow.Result, error) {
	if err := w.setTokenOwner(ctx, model.TokenOwnerNoOne); err != nil {
		return workflow.Result{}, err
	}
	if err := w.resolveSubscriber(ctx); err != nil {
		return workflow.Result{}, err
	}
	return workflow.Continue(StepDoSubscription), nil
}

func (w *Workflow) doConfirmVerify(ctx context.Context) (workflow.Result, error) {
	if err := w.setTokenOwner(ctx, model.TokenOwnerNoOne); err != nil {
		return workflow.Result{}, err
	}
	if err := w.resolveSubscriber(ctx); err != nil {
		return workflow.Result{}, err
	}
	if !w.address.Verified() {
		if err := w.verify(ctx); err != nil {
			return workflow.Result{}, err
		}
	}
	if w.list.SubscriptionPolicy.RequiresModeration() {
		return workflow.Continue(StepModerationChecks), nil
	}
	return workflow.Continue(StepDoSubscription), nil
}

func (w *Workflow) doSubscription(ctx context.Context) (workflow.Result, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return workflow.Result{}, fmt.Errorf("generate member id: %w", err)
	}
	m := model.Member{
		ID:           id,
		ListID:       w.list.ListID,
		Email:        w.address.Email,
		UserID:       w.user.ID,
		Role:         model.RoleMember,
		SubscribedBy: w.key.Kind,
		SubscribedOn: w.deps.Clock.Now(),
	}
	err = w.deps.Roster.AddMember(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		return workflow.Result{}, NewAlreadySubscribedError(w.list.ListID, m.Email)
	}
	if err != nil {
		return workflow.Result{}, fmt.Errorf("add member: %w", err)
	}
	w.member = &m

	if w.token != "" {
		if _, err := w.Discard(ctx, w.token); err != nil {
			return workflow.Result{}, err
		}
	}
	w.logger.Info("member subscribed", "email", m.Email, "member", m.ID)
	return workflow.Done(m), nil
}

func (w *Workflow) verify(ctx context.Context) error {
	now := w.deps.Clock.Now()
	if err := w.deps.Identity.VerifyAddress(ctx, w.address.Email, now); err != nil {
		return fmt.Errorf("verify address: %w", err)
	}
	w.address.VerifiedOn = &now
	return nil
}

// pauseFor mints a token for owner and saves the workflow under it with
// next queued. If the save fails the token is expunged so no live token
// outlives its state.
func (w *Workflow) pauseFor(ctx context.Context, owner model.TokenOwner, next workflow.Step) error {
	if err := w.setTokenOwner(ctx, owner); err != nil {
		return err
	}
	w.Push(next)
	if err := w.Save(ctx, w.token); err != nil {
		if _, xerr := w.deps.Pendings.Confirm(ctx, w.token, true); xerr != nil {
			w.logger.Warn("expunge unsaved token failed", "token", w.token, "error", xerr)
		}
		w.token = ""
		w.tokenOwner = model.TokenOwnerNoOne
		return err
	}
	return nil
}

// setTokenOwner expunges the current token and, unless owner is no_one,
// mints a fresh one describing this request.
func (w *Workflow) setTokenOwner(ctx context.Context, owner model.TokenOwner) error {
	if w.token != "" {
		if _, err := w.deps.Pendings.Confirm(ctx, w.token, true); err != nil {
			return fmt.Errorf("expunge token: %w", err)
		}
	}
	w.tokenOwner = owner
	if owner == model.TokenOwnerNoOne {
		w.token = ""
		return nil
	}

	p := pending.Pendable{
		pending.KeyType:   PendableType,
		pending.KeyListID: w.list.ListID,
		KeyEmail:          w.address.Email,
		KeyDisplayName:    w.address.DisplayName,
		KeyWhen:           w.deps.Clock.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		KeyTokenOwner:     string(owner),
	}
	token, err := w.deps.Pendings.Add(ctx, p, w.deps.TokenLifetime)
	if err != nil {
		return fmt.Errorf("mint %s token: %w", owner, err)
	}
	w.token = token
	return nil
}

// resolveSubscriber reloads the live Address and User that a restored
// workflow only knows by key.
func (w *Workflow) resolveSubscriber(ctx context.Context) error {
	if w.address == nil {
		email := w.savedAddress
		if email == "" && w.key.Kind == model.SubscriberAddress {
			email = w.key.Email
		}
		if email == "" {
			return NewInvalidSubscriberError(fmt.Sprintf("no address recorded for %s", w.key))
		}
		addr, err := w.deps.Identity.GetAddress(ctx, email)
		if err != nil {
			return fmt.Errorf("resolve address %s: %w", email, err)
		}
		w.address = addr
	}

	if w.user == nil {
		var id uuid.UUID
		switch {
		case w.savedUser != "":
			parsed, err := uuid.Parse(w.savedUser)
			if err != nil {
				return fmt.Errorf("resolve user: %w", err)
			}
			id = parsed
		case w.key.Kind == model.SubscriberUser:
			id = w.key.User
		case w.address.UserID != nil:
			id = *w.address.UserID
		default:
			return NewInvalidSubscriberError(fmt.Sprintf("no user recorded for %s", w.key))
		}
		u, err := w.deps.Identity.GetUser(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve user %s: %w", id, err)
		}
		w.user = u
	}
	return nil
}
