package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("OTP_TTL", "")
	t.Setenv("SMS_CARRIER_GATEWAYS", "")

	cfg := LoadConfig()

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 15*time.Minute, cfg.OTP.PasswordResetTTL)
	assert.Equal(t, 30*time.Second, cfg.OTP.RateWindow)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, "+91", cfg.SMS.CountryCode)
	assert.Equal(t, defaultCarrierGateways, cfg.SMS.CarrierGateways)
	assert.Equal(t, "otp_logs", cfg.Mongo.OTPCollection)
	assert.False(t, cfg.Auth.ExposeDevOTP)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OTP_RATE_WINDOW", "45s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 45*time.Second, cfg.OTP.RateWindow)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
}

func TestValidateProduction(t *testing.T) {
	cfg := LoadConfig()
	cfg.Environment = EnvProduction
	cfg.JWT.Secret = ""
	cfg.Auth.ExposeDevOTP = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "AUTH_EXPOSE_DEV_OTP")

	cfg.JWT.Secret = "s1"
	cfg.JWT.RefreshSecret = "s2"
	cfg.Auth.ExposeDevOTP = false
	cfg.KMS.LocalKey = "key"
	cfg.Store.Driver = StoreMongo
	assert.NoError(t, cfg.Validate())
}

func TestEmailConfigured(t *testing.T) {
	cfg := &Config{Email: EmailConfig{Provider: "smtp"}}
	assert.False(t, cfg.EmailConfigured())

	cfg.Email.Username = "u"
	cfg.Email.Password = "p"
	assert.True(t, cfg.EmailConfigured())

	cfg.Email = EmailConfig{Provider: "sendgrid", SendGridAPIKey: "k", From: "no-reply@x.com"}
	assert.True(t, cfg.EmailConfigured())
}
