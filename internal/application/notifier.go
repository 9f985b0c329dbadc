package application

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	"github.com/iYoNuttxD/user-service-microservice/pkg/mailer"
	mailtpl "github.com/iYoNuttxD/user-service-microservice/pkg/mailer/templates"
)

// Notifier turns user events into notification emails.
type Notifier struct {
	sender   mailer.Sender
	branding mailtpl.Branding
	logger   logrus.FieldLogger
}

func NewNotifier(s mailer.Sender, b mailtpl.Branding, logger logrus.FieldLogger) *Notifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{sender: s, branding: b, logger: logger}
}

// Handle sends the mail for ev. Subjects without a mail are acknowledged silently.
// It satisfies messaging.Handler.
func (n *Notifier) Handle(ctx context.Context, ev messaging.Event) error {
	job, ok := n.jobFor(ev)
	if !ok {
		return nil
	}
	if err := mailer.Deliver(ctx, n.sender, job); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"subject":  ev.Subject,
			"user_id":  ev.UserID,
			"template": job.Template,
		}).Error("notification send failed")
		return err
	}
	n.logger.WithFields(logrus.Fields{"subject": ev.Subject, "user_id": ev.UserID}).Info("notification sent")
	return nil
}

func (n *Notifier) jobFor(ev messaging.Event) (mailer.EmailJob, bool) {
	name := strings.TrimSpace(ev.FirstName + " " + ev.LastName)
	var (
		tpl  string
		opts []mailtpl.Option
	)
	switch ev.Subject {
	case messaging.SubjectUserCreated:
		tpl = mailtpl.Welcome
	case messaging.SubjectPasswordChanged:
		tpl = mailtpl.PasswordChanged
		opts = append(opts, mailtpl.WithTime(ev.OccurredAt))
	case messaging.SubjectStatusChanged:
		tpl = mailtpl.AccountStatus
		opts = append(opts, mailtpl.WithActive(ev.IsActive))
	default:
		return mailer.EmailJob{}, false
	}
	return mailer.EmailJob{
		To:       ev.Email,
		Template: tpl,
		Data:     mailtpl.NewEmailData(n.branding, name, ev.Email, opts...),
	}, true
}
