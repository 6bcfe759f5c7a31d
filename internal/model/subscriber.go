package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SubscriberKey is the persisted identity of a subscriber: the kind plus the
// key that resolves it ("address:anne@example.com" or "user:<uuid>").
// Live Address/User objects are never persisted; they are resolved from
// this key whenever a restored workflow needs them.
type SubscriberKey struct {
	Kind  SubscriberKind
	Email string
	User  uuid.UUID
}

// AddressKey builds the key for an address subscriber.
func AddressKey(email string) SubscriberKey {
	return SubscriberKey{Kind: SubscriberAddress, Email: NormalizeEmail(email)}
}

// UserKey builds the key for a user subscriber.
func UserKey(id uuid.UUID) SubscriberKey {
	return SubscriberKey{Kind: SubscriberUser, User: id}
}

// String renders the key in its persisted form.
func (k SubscriberKey) String() string {
	switch k.Kind {
	case SubscriberAddress:
		return string(SubscriberAddress) + ":" + k.Email
	case SubscriberUser:
		return string(SubscriberUser) + ":" + k.User.String()
	}
	return ""
}

// IsZero reports whether the key is unset.
func (k SubscriberKey) IsZero() bool {
	return k.Kind == ""
}

// ParseSubscriberKey parses the persisted form produced by String.
func ParseSubscriberKey(s string) (SubscriberKey, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return SubscriberKey{}, fmt.Errorf("invalid subscriber key %q", s)
	}
	switch SubscriberKind(kind) {
	case SubscriberAddress:
		return AddressKey(value), nil
	case SubscriberUser:
		id, err := uuid.Parse(value)
		if err != nil {
			return SubscriberKey{}, fmt.Errorf("invalid subscriber key %q: %w", s, err)
		}
		return UserKey(id), nil
	}
	return SubscriberKey{}, fmt.Errorf("invalid subscriber key %q: unknown kind %q", s, kind)
}
