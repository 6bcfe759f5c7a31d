// Package notify delivers the messages a paused subscription waits on.
//
// Mail transport is out of scope; the Log notifier writes each message to a
// structured logger for an external mailer to pick up, and the Recorder
// keeps messages in memory for tests and the scenario harness.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/listflow/internal/model"
)

// Kind distinguishes message purposes.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindModeration   Kind = "moderation"
)

// Message is one outbound notification.
type Message struct {
	Kind       Kind     `json:"kind" yaml:"kind"`
	ListID     string   `json:"list_id" yaml:"list_id"`
	Sender     string   `json:"sender" yaml:"sender"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Subject    string   `json:"subject" yaml:"subject"`
	Body       string   `json:"body,omitempty" yaml:"body,omitempty"`
}

// ConfirmationMessage builds the message asking recipient to confirm token.
func ConfirmationMessage(list model.MailingList, token, recipient string) Message {
	return Message{
		Kind:       KindConfirmation,
		ListID:     list.ListID,
		Sender:     list.RequestAddress(),
		Recipients: []string{recipient},
		Subject:    "confirm " + token,
		Body: fmt.Sprintf(
			"Email address confirmation\n\n"+
				"Someone asked to subscribe %s to %s.\n"+
				"To confirm, reply to this message keeping the Subject header intact.\n",
			recipient, list.PostingAddress),
	}
}

// ModerationMessage builds the message asking moderators for approval.
func ModerationMessage(list model.MailingList, recipients []string, subject, body string) Message {
	return Message{
		Kind:       KindModeration,
		ListID:     list.ListID,
		Sender:     list.OwnerAddress(),
		Recipients: slices.Clone(recipients),
		Subject:    subject,
		Body:       body,
	}
}

// Log emits every message as a structured log record.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier. A nil logger selects slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// SendConfirmation logs a confirmation request.
func (l *Log) SendConfirmation(ctx context.Context, list model.MailingList, token, recipient string) error {
	l.emit(ctx, ConfirmationMessage(list, token, recipient))
	return nil
}

// NotifyModerators logs a moderation request.
func (l *Log) NotifyModerators(ctx context.Context, list model.MailingList, recipients []string, subject, body string) error {
	l.emit(ctx, ModerationMessage(list, recipients, subject, body))
	return nil
}

func (l *Log) emit(ctx context.Context, m Message) {
	l.logger.InfoContext(ctx, "outbound message",
		"kind", m.Kind,
		"list", m.ListID,
		"sender", m.Sender,
		"recipients", m.Recipients,
		"subject", m.Subject,
	)
}

// Recorder keeps messages in memory. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	fail     error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent sends record nothing and return err.
// A nil err restores normal behavior.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// SendConfirmation records a confirmation request.
func (r *Recorder) SendConfirmation(_ context.Context, list model.MailingList, token, recipient string) error {
	return r.record(ConfirmationMessage(list, token, recipient))
}

// NotifyModerators records a moderation request.
func (r *Recorder) NotifyModerators(_ context.Context, list model.MailingList, recipients []string, subject, body string) error {
	return r.record(ModerationMessage(list, recipients, subject, body))
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.messages = append(r.messages, m)
	return nil
}

// Messages returns a copy of the recorded messages in send order.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

// Drain returns the recorded messages and forgets them.
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}
