package mail

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/pkg/config"
)

// Message is a provider independent outbound email.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

// Validate reports whether the message can be delivered.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("message has no subject")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("message has no content")
	}
	return nil
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the configured provider; console is used when SendGrid is not fully configured.
func New(cfg config.MailConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == config.MailProviderSendGrid && cfg.SendGridAPIKey != "" {
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail, logger)
	}
	if cfg.Provider == config.MailProviderSendGrid {
		logger.Warn("SENDGRID_API_KEY missing, falling back to console mailer")
	}
	return NewConsoleSender(logger)
}

// ConsoleSender logs messages instead of delivering them.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender builds a development sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send writes the message to the log.
func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	s.logger.Info("email (console)",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
