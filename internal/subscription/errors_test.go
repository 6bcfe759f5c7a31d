package subscription

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Predicates(t *testing.T) {
	banned := fmt.Errorf("register: %w", NewBannedError("ant.example.com", "anne@example.com"))
	lookup := NewLookupError("abc")

	assert.True(t, IsBannedError(banned))
	assert.False(t, IsLookupError(banned))
	assert.True(t, IsLookupError(lookup))
	assert.False(t, IsContractError(lookup))
	assert.True(t, IsContractError(NewMissingPreferredAddressError("u1")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t,
		"MEMBERSHIP_BANNED: address is banned from this list (list=ant.example.com, email=anne@example.com)",
		NewBannedError("ant.example.com", "anne@example.com").Error())
	assert.Equal(t,
		"NO_SUCH_WORKFLOW: no pending subscription for token (token=abc)",
		NewLookupError("abc").Error())
	assert.Equal(t,
		"INVALID_SUBSCRIBER: subscriber is required",
		NewInvalidSubscriberError("subscriber is required").Error())
}
