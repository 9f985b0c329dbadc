package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iYoNuttxD/user-service-microservice/config"
	"github.com/iYoNuttxD/user-service-microservice/internal/application"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	"github.com/iYoNuttxD/user-service-microservice/pkg/helpers"
	"github.com/iYoNuttxD/user-service-microservice/pkg/mailer"
	mailtpl "github.com/iYoNuttxD/user-service-microservice/pkg/mailer/templates"
)

// The worker turns user events into transactional emails.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-email-worker", cfg.Env)

	if !cfg.MailSendEnabled {
		logger.Info("MAIL_SEND_ENABLED=false; email worker disabled")
		return
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQEmailQueue == "" {
		logger.Fatal("RabbitMQ not configured")
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
		logger.Fatal("Mailgun not configured")
	}

	consumer, err := messaging.NewConsumer(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQEmailQueue, []string{
		messaging.SubjectUserCreated,
		messaging.SubjectPasswordChanged,
		messaging.SubjectStatusChanged,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("amqp consumer")
	}
	defer consumer.Close()

	notifier := application.NewNotifier(
		mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender),
		mailtpl.Branding{AppName: cfg.AppName, CompanyName: cfg.CompanyName, SupportURL: cfg.SupportURL},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("queue", cfg.RabbitMQEmailQueue).Info("email worker listening")
	if err := consumer.Run(ctx, notifier.Handle); err != nil {
		logger.WithError(err).Error("consumer stopped")
		return
	}
	logger.Info("email worker stopped")
}
