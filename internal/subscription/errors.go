package subscription

import (
	"errors"
	"fmt"
)

// Error is a subscription failure with a machine-readable code.
//
// Error codes:
//   - MEMBERSHIP_BANNED: the address matches a list or global ban
//   - ALREADY_SUBSCRIBED: the address is already a member of the list
//   - NO_SUCH_WORKFLOW: no paused workflow matches the presented token
//   - MISSING_PREFERRED_ADDRESS: a user subscriber has no preferred address
//   - INVALID_SUBSCRIBER: the workflow was built without a usable subscriber
//
// The last two are contract violations: they indicate a bug in the caller,
// not a condition a subscriber can trigger.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ListID identifies the affected list, when known.
	ListID string

	// Email identifies the affected address, when known.
	Email string

	// Token is the presented token, for lookup failures.
	Token string
}

// ErrorCode categorizes subscription errors.
type ErrorCode string

const (
	ErrCodeBanned                  ErrorCode = "MEMBERSHIP_BANNED"
	ErrCodeAlreadySubscribed       ErrorCode = "ALREADY_SUBSCRIBED"
	ErrCodeNoSuchWorkflow          ErrorCode = "NO_SUCH_WORKFLOW"
	ErrCodeMissingPreferredAddress ErrorCode = "MISSING_PREFERRED_ADDRESS"
	ErrCodeInvalidSubscriber       ErrorCode = "INVALID_SUBSCRIBER"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Token != "":
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, e.Message, e.Token)
	case e.ListID != "" && e.Email != "":
		return fmt.Sprintf("%s: %s (list=%s, email=%s)", e.Code, e.Message, e.ListID, e.Email)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBannedError reports a banned address.
func NewBannedError(listID, email string) *Error {
	return &Error{
		Code:    ErrCodeBanned,
		Message: "address is banned from this list",
		ListID:  listID,
		Email:   email,
	}
}

// NewAlreadySubscribedError reports an address that is already a member.
func NewAlreadySubscribedError(listID, email string) *Error {
	return &Error{
		Code:    ErrCodeAlreadySubscribed,
		Message: "address is already subscribed",
		ListID:  listID,
		Email:   email,
	}
}

// NewLookupError reports a token with no matching paused workflow.
func NewLookupError(token string) *Error {
	return &Error{
		Code:    ErrCodeNoSuchWorkflow,
		Message: "no pending subscription for token",
		Token:   token,
	}
}

// NewMissingPreferredAddressError reports a user without a preferred address.
func NewMissingPreferredAddressError(userID string) *Error {
	return &Error{
		Code:    ErrCodeMissingPreferredAddress,
		Message: fmt.Sprintf("user %s has no preferred address", userID),
	}
}

// NewInvalidSubscriberError reports a malformed subscriber.
func NewInvalidSubscriberError(message string) *Error {
	return &Error{Code: ErrCodeInvalidSubscriber, Message: message}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsBannedError returns true if err is a MEMBERSHIP_BANNED error.
func IsBannedError(err error) bool {
	return CodeOf(err) == ErrCodeBanned
}

// IsAlreadySubscribedError returns true if err is an ALREADY_SUBSCRIBED error.
func IsAlreadySubscribedError(err error) bool {
	return CodeOf(err) == ErrCodeAlreadySubscribed
}

// IsLookupError returns true if err is a NO_SUCH_WORKFLOW error.
func IsLookupError(err error) bool {
	return CodeOf(err) == ErrCodeNoSuchWorkflow
}

// IsContractError returns true if err reports a caller bug rather than a
// subscriber-triggerable condition.
func IsContractError(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeMissingPreferredAddress || code == ErrCodeInvalidSubscriber
}
