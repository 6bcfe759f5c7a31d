package model

import "fmt"

// SubscriptionPolicy decides which out-of-band steps a subscription needs.
type SubscriptionPolicy string

const (
	PolicyOpen                SubscriptionPolicy = "open"
	PolicyConfirm             SubscriptionPolicy = "confirm"
	PolicyModerate            SubscriptionPolicy = "moderate"
	PolicyConfirmThenModerate SubscriptionPolicy = "confirm_then_moderate"
)

// ValidPolicies lists the legal subscription policies.
var ValidPolicies = []SubscriptionPolicy{
	PolicyOpen,
	PolicyConfirm,
	PolicyModerate,
	PolicyConfirmThenModerate,
}

// ParsePolicy converts a policy name into a SubscriptionPolicy.
func ParsePolicy(s string) (SubscriptionPolicy, error) {
	for _, p := range ValidPolicies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid subscription policy %q: must be one of %v", s, ValidPolicies)
}

// RequiresConfirmation reports whether the subscriber must confirm.
func (p SubscriptionPolicy) RequiresConfirmation() bool {
	return p == PolicyConfirm || p == PolicyConfirmThenModerate
}

// RequiresModeration reports whether a moderator must approve.
func (p SubscriptionPolicy) RequiresModeration() bool {
	return p == PolicyModerate || p == PolicyConfirmThenModerate
}

// TokenOwner names the party expected to present the current token next.
type TokenOwner string

const (
	TokenOwnerNoOne      TokenOwner = "no_one"
	TokenOwnerSubscriber TokenOwner = "subscriber"
	TokenOwnerModerator  TokenOwner = "moderator"
)

// ParseTokenOwner converts a name into a TokenOwner.
func ParseTokenOwner(s string) (TokenOwner, error) {
	switch TokenOwner(s) {
	case TokenOwnerNoOne, TokenOwnerSubscriber, TokenOwnerModerator:
		return TokenOwner(s), nil
	case "":
		return TokenOwnerNoOne, nil
	}
	return "", fmt.Errorf("invalid token owner %q", s)
}

// MemberRole is the role a member plays on a list.
type MemberRole string

const (
	RoleMember    MemberRole = "member"
	RoleOwner     MemberRole = "owner"
	RoleModerator MemberRole = "moderator"
)

// ParseRole converts a role name into a MemberRole.
func ParseRole(s string) (MemberRole, error) {
	switch MemberRole(s) {
	case RoleMember, RoleOwner, RoleModerator:
		return MemberRole(s), nil
	}
	return "", fmt.Errorf("invalid member role %q", s)
}

// SubscriberKind records whether a subscription was requested for an
// address or for a user.
type SubscriberKind string

const (
	SubscriberAddress SubscriberKind = "address"
	SubscriberUser    SubscriberKind = "user"
)
