package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/identity"
)

var ErrNoSMSRoute = errors.New("no sms route succeeded")

// SMSSender delivers a text to a local ten digit number and reports the provider used.
type SMSSender interface {
	SendSMS(ctx context.Context, localDigits, text string) (string, error)
}

type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
}

type smsResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// HTTPSMSProvider posts JSON to a generic SMS gateway with a bearer API key.
type HTTPSMSProvider struct {
	url         string
	apiKey      string
	senderID    string
	countryCode string
	client      *http.Client
	logger      *zap.Logger
}

func NewHTTPSMSProvider(cfg config.SMSConfig, client *http.Client, logger *zap.Logger) *HTTPSMSProvider {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPSMSProvider{
		url:         cfg.ProviderURL,
		apiKey:      cfg.APIKey,
		senderID:    cfg.SenderID,
		countryCode: cfg.CountryCode,
		client:      client,
		logger:      logger,
	}
}

func (p *HTTPSMSProvider) SendSMS(ctx context.Context, localDigits, text string) (string, error) {
	payload, err := json.Marshal(smsRequest{
		To:       p.countryCode + localDigits,
		Message:  text,
		SenderID: p.senderID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("sms provider response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms provider status %d", resp.StatusCode)
	}

	var out smsResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("sms provider response: %w", err)
		}
		if !out.Success && !strings.EqualFold(out.Status, "sent") && !strings.EqualFold(out.Status, "queued") {
			return "", fmt.Errorf("sms provider rejected message: %s", out.Error)
		}
	}

	p.logger.Info("SMS sent",
		zap.String("provider", "http"),
		zap.String("to", identity.Mask(localDigits)),
		zap.String("message_id", out.MessageID))
	return "http", nil
}

// CarrierGatewaySender mails the text to digits@gateway for each carrier domain in order.
type CarrierGatewaySender struct {
	email    EmailSender
	gateways []string
	logger   *zap.Logger
}

func NewCarrierGatewaySender(email EmailSender, gateways []string, logger *zap.Logger) *CarrierGatewaySender {
	return &CarrierGatewaySender{email: email, gateways: gateways, logger: logger}
}

func (c *CarrierGatewaySender) SendSMS(ctx context.Context, localDigits, text string) (string, error) {
	var errs []error
	for _, gateway := range c.gateways {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := c.email.Send(ctx, Message{
			To:      localDigits + "@" + gateway,
			Subject: "OTP",
			Text:    text,
		})
		if err == nil {
			c.logger.Info("SMS sent via carrier gateway",
				zap.String("gateway", gateway),
				zap.String("to", identity.Mask(localDigits)))
			return "gateway:" + gateway, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", gateway, err))
	}
	return "", errors.Join(append([]error{ErrNoSMSRoute}, errs...)...)
}

// SMSChain tries each sender in order; the first success wins.
type SMSChain struct {
	senders []SMSSender
	logger  *zap.Logger
}

func NewSMSChain(logger *zap.Logger, senders ...SMSSender) *SMSChain {
	return &SMSChain{senders: senders, logger: logger}
}

func (c *SMSChain) Len() int { return len(c.senders) }

func (c *SMSChain) SendSMS(ctx context.Context, localDigits, text string) (string, error) {
	var errs []error
	for _, sender := range c.senders {
		provider, err := sender.SendSMS(ctx, localDigits, text)
		if err == nil {
			return provider, nil
		}
		c.logger.Warn("SMS route failed", zap.Error(err))
		errs = append(errs, err)
	}
	return "", errors.Join(append([]error{ErrNoSMSRoute}, errs...)...)
}

// NewSMSRoute assembles the configured SMS senders; it returns nil when none is usable.
func NewSMSRoute(cfg config.SMSConfig, email EmailSender, logger *zap.Logger) SMSSender {
	var senders []SMSSender
	if cfg.ProviderURL != "" && cfg.APIKey != "" {
		senders = append(senders, NewHTTPSMSProvider(cfg, nil, logger))
	}
	if !email.Simulated() && len(cfg.CarrierGateways) > 0 {
		senders = append(senders, NewCarrierGatewaySender(email, cfg.CarrierGateways, logger))
	}
	if len(senders) == 0 {
		return nil
	}
	return NewSMSChain(logger, senders...)
}
