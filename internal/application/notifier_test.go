package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	mailtpl "github.com/iYoNuttxD/user-service-microservice/pkg/mailer/templates"
)

type sentMail struct {
	to, subject, text, html string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, text, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, text, html})
	return nil
}

func event(subject string) messaging.Event {
	return messaging.Event{
		ID:         "ev-1",
		Subject:    subject,
		OccurredAt: time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC),
		UserID:     "u-1",
		Email:      "alice@example.com",
		FirstName:  "Alice",
		LastName:   "Wong",
		IsActive:   true,
	}
}

func TestNotifier_SubjectsToTemplates(t *testing.T) {
	s := &fakeSender{}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(s, mailtpl.Branding{AppName: "Users"}, logger)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, event(messaging.SubjectUserCreated)))
	require.NoError(t, n.Handle(ctx, event(messaging.SubjectPasswordChanged)))
	deactivated := event(messaging.SubjectStatusChanged)
	deactivated.IsActive = false
	require.NoError(t, n.Handle(ctx, deactivated))
	require.NoError(t, n.Handle(ctx, event(messaging.SubjectUserUpdated)))

	require.Len(t, s.sent, 3)
	assert.Equal(t, "alice@example.com", s.sent[0].to)
	assert.Equal(t, "Welcome to Users", s.sent[0].subject)
	assert.Contains(t, s.sent[0].text, "Hi Alice Wong")
	assert.Equal(t, "Your Users password was changed", s.sent[1].subject)
	assert.Contains(t, s.sent[1].text, "04 March 2026, 10:30")
	assert.Equal(t, "Your account has been deactivated", s.sent[2].subject)
}

func TestNotifier_SendFailure(t *testing.T) {
	s := &fakeSender{err: errors.New("mailgun down")}
	logger, hook := test.NewNullLogger()
	n := NewNotifier(s, mailtpl.Branding{}, logger)

	err := n.Handle(context.Background(), event(messaging.SubjectUserCreated))
	require.Error(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "welcome", hook.LastEntry().Data["template"])
}

func TestNotifier_EmptyRecipient(t *testing.T) {
	s := &fakeSender{}
	logger, _ := test.NewNullLogger()
	n := NewNotifier(s, mailtpl.Branding{}, logger)

	ev := event(messaging.SubjectUserCreated)
	ev.Email = ""
	assert.Error(t, n.Handle(context.Background(), ev))
	assert.Empty(t, s.sent)
}
