// Package delivery sends OTP and account emails and SMS through the configured providers.
package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/identity"
)

var ErrInvalidAddress = errors.New("invalid email address")

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers one message. Simulated senders only log.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
	Provider() string
	Simulated() bool
}

// NewEmailSender picks SMTP, SendGrid or the simulated sender from configuration.
func NewEmailSender(cfg *config.Config, logger *zap.Logger) EmailSender {
	if !cfg.EmailConfigured() {
		logger.Warn("Email credentials missing, delivery is simulated")
		return NewSimulatedSender(logger)
	}
	if cfg.Email.Provider == "sendgrid" {
		return NewSendGridSender(cfg.Email, logger)
	}
	return NewSMTPSender(cfg.Email, logger)
}

func checkAddress(to string) error {
	if _, err := mail.ParseAddress(to); err != nil || !identity.ValidEmail(to) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, identity.Mask(to))
	}
	return nil
}

type SMTPSender struct {
	cfg    config.EmailConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

func NewSMTPSender(cfg config.EmailConfig, logger *zap.Logger) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.SkipTLSVerify}
	return &SMTPSender{cfg: cfg, dialer: d, logger: logger}
}

func (s *SMTPSender) Provider() string { return "smtp" }
func (s *SMTPSender) Simulated() bool  { return false }

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := checkAddress(msg.To); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	// gomail has no context support; run the dial in the background and stop waiting on cancel.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("SMTP send failed", zap.String("to", identity.Mask(msg.To)), zap.Error(err))
			return fmt.Errorf("smtp send: %w", err)
		}
		s.logger.Info("Email sent", zap.String("provider", "smtp"), zap.String("to", identity.Mask(msg.To)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type SendGridSender struct {
	cfg    config.EmailConfig
	client *sendgrid.Client
	logger *zap.Logger
}

func NewSendGridSender(cfg config.EmailConfig, logger *zap.Logger) *SendGridSender {
	return &SendGridSender{cfg: cfg, client: sendgrid.NewSendClient(cfg.SendGridAPIKey), logger: logger}
}

func (s *SendGridSender) Provider() string { return "sendgrid" }
func (s *SendGridSender) Simulated() bool  { return false }

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := checkAddress(msg.To); err != nil {
		return err
	}

	from := sgmail.NewEmail(s.cfg.FromName, s.cfg.From)
	to := sgmail.NewEmail("", msg.To)
	message := sgmail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("SendGrid send failed", zap.String("to", identity.Mask(msg.To)), zap.Error(err))
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", response.StatusCode)
	}

	s.logger.Info("Email sent", zap.String("provider", "sendgrid"), zap.String("to", identity.Mask(msg.To)))
	return nil
}

// SimulatedSender logs messages instead of sending them.
type SimulatedSender struct {
	logger *zap.Logger
}

func NewSimulatedSender(logger *zap.Logger) *SimulatedSender {
	return &SimulatedSender{logger: logger}
}

func (s *SimulatedSender) Provider() string { return "simulated" }
func (s *SimulatedSender) Simulated() bool  { return true }

func (s *SimulatedSender) Send(_ context.Context, msg Message) error {
	if err := checkAddress(msg.To); err != nil {
		return err
	}
	s.logger.Info("[SIMULATED] Email not sent", zap.String("to", identity.Mask(msg.To)))
	return nil
}
