package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Dev logs messages instead of sending them. Default when neither
// MailerSend nor SMTP is configured.
type Dev struct {
	logger *zap.Logger
}

// NewDev creates the dev sink.
func NewDev(logger *zap.Logger) *Dev {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dev{logger: logger}
}

// Send logs the message and reports success.
func (d *Dev) Send(_ context.Context, msg Message) error {
	fields := []zap.Field{
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
	}
	for _, att := range msg.Attachments {
		fields = append(fields, zap.String("attachment", att.Filename))
	}
	d.logger.Info("dev mail (not sent)", fields...)
	return nil
}
