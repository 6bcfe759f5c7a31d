package model

import (
	"time"

	"github.com/google/uuid"
)

// MailingList is the policy object the subscription workflow consults.
type MailingList struct {
	ListID             string             `json:"list_id"` // "ant.example.com"
	PostingAddress     string             `json:"posting_address"`
	DisplayName        string             `json:"display_name"`
	SubscriptionPolicy SubscriptionPolicy `json:"subscription_policy"`
	AdminImmedNotify   bool               `json:"admin_immed_notify"`
}

// OwnerAddress returns the list's -owner address, used as the sender of
// administrative notifications so that bounces never loop back to the list.
func (l MailingList) OwnerAddress() string {
	local, domain, ok := splitEmail(l.PostingAddress)
	if !ok {
		return l.PostingAddress
	}
	return local + "-owner@" + domain
}

// RequestAddress returns the list's -request address, the sender of
// confirmation messages.
func (l MailingList) RequestAddress() string {
	local, domain, ok := splitEmail(l.PostingAddress)
	if !ok {
		return l.PostingAddress
	}
	return local + "-request@" + domain
}

// User is a person who may own several addresses.
// PreferredAddress is empty when the user has not chosen one.
type User struct {
	ID               uuid.UUID `json:"id"`
	DisplayName      string    `json:"display_name"`
	PreferredAddress string    `json:"preferred_address,omitempty"`
	CreatedOn        time.Time `json:"created_on"`
}

// Address is a registered email address.
type Address struct {
	Email        string     `json:"email"` // normalized
	DisplayName  string     `json:"display_name"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	VerifiedOn   *time.Time `json:"verified_on,omitempty"`
	RegisteredOn time.Time  `json:"registered_on"`
}

// Verified reports whether the address carries a verification timestamp.
func (a *Address) Verified() bool {
	return a.VerifiedOn != nil
}

// Member is the durable result of a completed subscription.
type Member struct {
	ID           uuid.UUID      `json:"id"`
	ListID       string         `json:"list_id"`
	Email        string         `json:"email"`
	UserID       uuid.UUID      `json:"user_id"`
	Role         MemberRole     `json:"role"`
	SubscribedBy SubscriberKind `json:"subscribed_by"`
	SubscribedOn time.Time      `json:"subscribed_on"`
}

// Ban is a single ban-list entry. An empty ListID marks a global ban.
// Entries starting with '^' are regular expressions; all others match the
// normalized email exactly.
type Ban struct {
	ListID string `json:"list_id,omitempty"`
	Email  string `json:"email"`
}

// IsPattern reports whether the entry is a regular expression.
func (b Ban) IsPattern() bool {
	return len(b.Email) > 0 && b.Email[0] == '^'
}

// WorkflowState is the persisted progress of a paused workflow.
// Step is empty when nothing was queued at save time.
type WorkflowState struct {
	Name  string `json:"name"`
	Token string `json:"token"`
	Step  string `json:"step,omitempty"`
	Data  []byte `json:"data"`
}
