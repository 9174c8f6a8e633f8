package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/models"
)

type recordingSender struct {
	mu        sync.Mutex
	sent      []Message
	failFor   map[string]bool
	simulated bool
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for suffix := range r.failFor {
		if strings.HasSuffix(msg.To, suffix) {
			return errors.New("rejected")
		}
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) Provider() string { return "recording" }
func (r *recordingSender) Simulated() bool  { return r.simulated }

type failingSMS struct{}

func (failingSMS) SendSMS(context.Context, string, string) (string, error) {
	return "", errors.New("sms down")
}

func TestPurposeLabel(t *testing.T) {
	assert.Equal(t, "Password Reset", PurposeLabel("password-reset"))
	assert.Equal(t, "Verify Email", PurposeLabel("verify-email"))
	assert.Equal(t, "Verification", PurposeLabel(""))
}

func TestOTPMessage(t *testing.T) {
	msg, err := OTPMessage("Real Beez", "a@x.com", "123456", "login", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Your OTP Code: 123456 - Real Beez", msg.Subject)
	assert.Contains(t, msg.Text, "Valid for 10 minutes")
	assert.Contains(t, msg.HTML, "123456")
	assert.Contains(t, msg.HTML, "Login Code")
}

func TestWelcomeMessageEscapesName(t *testing.T) {
	msg, err := WelcomeMessage("Real Beez", "a@x.com", "<b>A</b>")
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<b>A</b>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;A&lt;/b&gt;")
}

func TestSimulatedSenderRejectsBadAddress(t *testing.T) {
	s := NewSimulatedSender(zap.NewNop())
	assert.ErrorIs(t, s.Send(context.Background(), Message{To: "not-an-email"}), ErrInvalidAddress)
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@x.com"}))
}

func TestCarrierGatewayFallsThrough(t *testing.T) {
	email := &recordingSender{failFor: map[string]bool{"@airtelmail.com": true}}
	gw := NewCarrierGatewaySender(email, []string{"airtelmail.com", "vodafone-sms.de"}, zap.NewNop())

	provider, err := gw.SendSMS(context.Background(), "9876543210", "Your OTP")
	require.NoError(t, err)
	assert.Equal(t, "gateway:vodafone-sms.de", provider)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "9876543210@vodafone-sms.de", email.sent[0].To)
}

func TestHTTPSMSProvider(t *testing.T) {
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(smsResponse{Success: true, MessageID: "m1"})
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(config.SMSConfig{ProviderURL: srv.URL, APIKey: "key", CountryCode: "+91"}, srv.Client(), zap.NewNop())
	provider, err := p.SendSMS(context.Background(), "9876543210", "hello")
	require.NoError(t, err)
	assert.Equal(t, "http", provider)
	assert.Equal(t, "+919876543210", got.To)
}

func TestHTTPSMSProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(config.SMSConfig{ProviderURL: srv.URL, APIKey: "key"}, srv.Client(), zap.NewNop())
	_, err := p.SendSMS(context.Background(), "9876543210", "hello")
	assert.Error(t, err)
}

func TestDispatcherPhoneSimulated(t *testing.T) {
	d := NewDispatcher("Real Beez", NewSimulatedSender(zap.NewNop()), nil, "+91", zap.NewNop())
	require.True(t, d.Simulated())

	delivery, err := d.Phone("+919876543210", "", 10*time.Minute)(context.Background(), "123456")
	require.NoError(t, err)
	assert.True(t, delivery.Simulated)
	assert.Equal(t, models.ChannelSMS, delivery.Channel)
}

func TestDispatcherPhoneFallsBackToEmail(t *testing.T) {
	email := &recordingSender{}
	d := NewDispatcher("Real Beez", email, failingSMS{}, "+91", zap.NewNop())

	delivery, err := d.Phone("+919876543210", "a@x.com", 10*time.Minute)(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, delivery.Channel)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "a@x.com", email.sent[0].To)
}

func TestDispatcherPhoneFailsWithoutFallback(t *testing.T) {
	d := NewDispatcher("Real Beez", &recordingSender{}, failingSMS{}, "+91", zap.NewNop())
	_, err := d.Phone("+919876543210", "", 10*time.Minute)(context.Background(), "123456")
	assert.Error(t, err)
}

func TestNewSMSRoute(t *testing.T) {
	assert.Nil(t, NewSMSRoute(config.SMSConfig{}, NewSimulatedSender(zap.NewNop()), zap.NewNop()))

	route := NewSMSRoute(config.SMSConfig{CarrierGateways: []string{"jiomail.com"}}, &recordingSender{}, zap.NewNop())
	require.NotNil(t, route)
	assert.Equal(t, 1, route.(*SMSChain).Len())
}
