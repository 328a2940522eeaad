package mailer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

//go:generate mockgen -destination=../mocks/mock_mailer.go -package=pkgmocks github.com/viaforteexpress/campaign-engine/pkg/mailer Mailer

// Mailer is the outbound email transport: send one email, get an ID or an error.
// A failed send is reported through the error; the engine folds it into the
// campaign's failed counter and moves on.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (messageID string, err error)
}

// Config holds the configuration for the SMTP mailer
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// SMTPMailer implements the Mailer interface using SMTP
type SMTPMailer struct {
	config   *Config
	testMode bool
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(config *Config) *SMTPMailer {
	return &SMTPMailer{config: config}
}

// NewTestSMTPMailer creates an SMTP mailer in test mode (won't connect to an
// SMTP server, every send succeeds)
func NewTestSMTPMailer(config *Config) *SMTPMailer {
	return &SMTPMailer{config: config, testMode: true}
}

// Send delivers one email over SMTP and returns the generated message ID
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	messageID := uuid.New().String()

	msg := mail.NewMsg(mail.WithNoDefaultUserAgent())

	if err := msg.FromFormat(m.config.FromName, m.config.FromEmail); err != nil {
		return "", fmt.Errorf("failed to set email from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("failed to set email recipient: %w", err)
	}

	msg.Subject(subject)
	msg.SetMessageIDWithValue(messageID)
	msg.SetBodyString(mail.TypeTextHTML, html)

	if m.testMode {
		return messageID, nil
	}

	client, err := mail.NewClient(
		m.config.SMTPHost,
		mail.WithPort(m.config.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.config.SMTPUsername),
		mail.WithPassword(m.config.SMTPPassword),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return messageID, nil
}
