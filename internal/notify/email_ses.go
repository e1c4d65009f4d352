package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// sesAPI is the part of the SES v2 client the sender calls.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers admin emails through AWS SES.
type SESSender struct {
	api    sesAPI
	from   string
	logger *logging.Logger
}

// SESConfig holds the sender identity.
type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender returns nil without a client.
func NewSESSender(client *sesv2.Client, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	return newSESSender(client, cfg, logger)
}

func newSESSender(api sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SESSender{
		api:    api,
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("notify: ses: recipient required")
	}
	out, err := s.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Simple: sesMessage(msg)},
	})
	if err != nil {
		s.logger.Error("notify: ses send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.logger.Info("notify: email sent via ses",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// sesMessage carries the plain body and, when present, the HTML body.
func sesMessage(msg EmailMessage) *types.Message {
	m := &types.Message{
		Subject: utf8Content(msg.Subject),
		Body:    &types.Body{},
	}
	if msg.Body != "" {
		m.Body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		m.Body.Html = utf8Content(msg.HTML)
	}
	return m
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
