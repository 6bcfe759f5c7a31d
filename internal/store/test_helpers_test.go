package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/listflow/internal/model"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestList creates a list with minimal required fields.
func createTestList(listID string, policy model.SubscriptionPolicy) model.MailingList {
	return model.MailingList{
		ListID:             listID,
		PostingAddress:     "ant@" + listID,
		DisplayName:        "Ant",
		SubscriptionPolicy: policy,
		AdminImmedNotify:   true,
	}
}

// createTestMember creates a regular member with a fresh ID.
func createTestMember(listID, email string) model.Member {
	return model.Member{
		ID:           uuid.Must(uuid.NewV7()),
		ListID:       listID,
		Email:        email,
		UserID:       uuid.Must(uuid.NewV7()),
		Role:         model.RoleMember,
		SubscribedBy: model.SubscriberAddress,
		SubscribedOn: testEpoch,
	}
}
