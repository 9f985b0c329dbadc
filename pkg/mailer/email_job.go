package mailer

import (
	"context"
	"errors"

	mailtpl "github.com/iYoNuttxD/user-service-microservice/pkg/mailer/templates"
)

// EmailJob is one templated email ready to render and send.
type EmailJob struct {
	To       string
	Template string
	Data     mailtpl.EmailData
}

// Deliver renders the job and hands it to s.
func Deliver(ctx context.Context, s Sender, job EmailJob) error {
	if job.To == "" {
		return errors.New("mailer: empty recipient")
	}
	subject, text, html, err := mailtpl.Render(job.Template, job.Data)
	if err != nil {
		return err
	}
	return s.Send(ctx, job.To, subject, text, html)
}
