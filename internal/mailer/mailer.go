// Package mailer delivers outbound email through MailerSend, SMTP, or a
// dev log sink. Rendering happens in the worker; implementations here are
// pure transports.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Attachment is a file attached to an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email.
type Message struct {
	ToEmail     string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the mail transport.
type Config struct {
	MailerSendAPIKey string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPUseTLS       bool
	FromName         string
	FromEmail        string
}

// NewFromConfig picks the transport: MailerSend when an API key is set,
// SMTP when a host is set, otherwise the dev sink.
func NewFromConfig(cfg Config, logger *zap.Logger) Mailer {
	switch {
	case cfg.MailerSendAPIKey != "":
		return NewMailerSend(cfg.MailerSendAPIKey, cfg.FromName, cfg.FromEmail)
	case cfg.SMTPHost != "":
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	default:
		return NewDev(logger)
	}
}
