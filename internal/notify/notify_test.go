package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/listflow/internal/model"
)

var antList = model.MailingList{
	ListID:             "ant.example.com",
	PostingAddress:     "ant@example.com",
	DisplayName:        "Ant",
	SubscriptionPolicy: model.PolicyConfirm,
}

func TestConfirmationMessage(t *testing.T) {
	m := ConfirmationMessage(antList, "abc123", "anne@example.com")

	assert.Equal(t, KindConfirmation, m.Kind)
	assert.Equal(t, "ant-request@example.com", m.Sender)
	assert.Equal(t, []string{"anne@example.com"}, m.Recipients)
	assert.Equal(t, "confirm abc123", m.Subject)
	assert.Contains(t, m.Body, "anne@example.com")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.SendConfirmation(ctx, antList, "tok", "anne@example.com"))
	recipients := []string{"owner@example.com"}
	require.NoError(t, r.NotifyModerators(ctx, antList, recipients, "subject", "body"))
	recipients[0] = "mutated@example.com"

	msgs := r.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindConfirmation, msgs[0].Kind)
	assert.Equal(t, KindModeration, msgs[1].Kind)
	assert.Equal(t, "ant-owner@example.com", msgs[1].Sender)
	assert.Equal(t, []string{"owner@example.com"}, msgs[1].Recipients)

	assert.Len(t, r.Drain(), 2)
	assert.Empty(t, r.Messages())
}

func TestRecorder_FailWith(t *testing.T) {
	r := NewRecorder()
	boom := errors.New("smtp down")
	r.FailWith(boom)

	err := r.SendConfirmation(context.Background(), antList, "tok", "anne@example.com")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Messages())

	r.FailWith(nil)
	require.NoError(t, r.SendConfirmation(context.Background(), antList, "tok", "anne@example.com"))
	assert.Len(t, r.Messages(), 1)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, l.SendConfirmation(context.Background(), antList, "tok", "anne@example.com"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"outbound message"`)
	assert.Contains(t, out, `"kind":"confirmation"`)
	assert.Contains(t, out, `"subject":"confirm tok"`)
}
