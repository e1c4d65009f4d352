package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/internal/notify"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// BuildDispatcher creates the outbox delivery handler. Without a queue URL
// events are only emailed; without an email provider the stub sender logs.
func BuildDispatcher(cfg *appconfig.Config, sqsClient *sqs.Client, sesClient *sesv2.Client, logger *logging.Logger) *notify.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	var publisher notify.Publisher
	if cfg.NotificationQueueURL != "" && sqsClient != nil {
		publisher = notify.NewSQSPublisher(sqsClient, cfg.NotificationQueueURL)
	} else {
		logger.Warn("NOTIFICATION_QUEUE_URL not set, push fan-out disabled")
	}
	email := notify.NewEmailSender(notify.EmailConfig{
		Provider:         cfg.EmailProvider,
		SendGridAPIKey:   cfg.SendGridAPIKey,
		SendGridFrom:     cfg.SendGridFromEmail,
		SendGridFromName: cfg.SendGridFromName,
		SESFrom:          cfg.SESFromEmail,
	}, sesClient, logger)
	if len(cfg.AdminNotifyEmails) == 0 {
		logger.Warn("ADMIN_NOTIFY_EMAILS not set, admin emails disabled")
	}
	return notify.NewDispatcher(publisher, email, cfg.AdminNotifyEmails, logger)
}
