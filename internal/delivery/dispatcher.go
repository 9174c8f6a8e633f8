package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/models"
	"marketplace-auth/internal/otp"
)

// Dispatcher picks the route for each OTP flow.
type Dispatcher struct {
	app         string
	email       EmailSender
	sms         SMSSender
	countryCode string
	logger      *zap.Logger
}

// NewDispatcher builds a dispatcher; sms may be nil when no SMS route is configured.
func NewDispatcher(app string, email EmailSender, sms SMSSender, countryCode string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{app: app, email: email, sms: sms, countryCode: countryCode, logger: logger}
}

// Simulated reports whether nothing reaches a real inbox or handset.
func (d *Dispatcher) Simulated() bool {
	return d.email.Simulated() && d.sms == nil
}

// Email returns a DeliverFunc for an OTP email to to.
func (d *Dispatcher) Email(to string, purpose models.Purpose, validity time.Duration) otp.DeliverFunc {
	return func(ctx context.Context, code string) (otp.Delivery, error) {
		return d.sendEmail(ctx, to, code, string(purpose), validity)
	}
}

// Phone returns a DeliverFunc that tries SMS and then fallbackEmail.
func (d *Dispatcher) Phone(phone, fallbackEmail string, validity time.Duration) otp.DeliverFunc {
	return func(ctx context.Context, code string) (otp.Delivery, error) {
		local := identity.LocalDigits(phone, d.countryCode)

		if d.Simulated() {
			d.logger.Info("[SIMULATED] SMS not sent", zap.String("to", identity.Mask(phone)))
			return otp.Delivery{Channel: models.ChannelSMS, Provider: "simulated", Simulated: true}, nil
		}

		var smsErr error
		if d.sms != nil {
			provider, err := d.sms.SendSMS(ctx, local, SMSText(d.app, code, validity))
			if err == nil {
				channel := models.ChannelSMS
				if strings.HasPrefix(provider, "gateway:") {
					channel = models.ChannelSMSGateway
				}
				return otp.Delivery{Channel: channel, Provider: provider}, nil
			}
			smsErr = err
		}

		if fallbackEmail == "" {
			if smsErr == nil {
				smsErr = ErrNoSMSRoute
			}
			return otp.Delivery{Channel: models.ChannelSMS}, smsErr
		}

		d.logger.Info("Falling back to email for phone OTP", zap.String("to", identity.Mask(fallbackEmail)))
		delivery, err := d.sendEmail(ctx, fallbackEmail, code, string(models.PurposePhoneVerification), validity)
		if err != nil {
			return delivery, fmt.Errorf("sms: %v; email: %w", smsErr, err)
		}
		return delivery, nil
	}
}

// Welcome sends the post-registration email; failures are logged only.
func (d *Dispatcher) Welcome(ctx context.Context, to, name string) {
	if to == "" {
		return
	}
	msg, err := WelcomeMessage(d.app, to, name)
	if err == nil {
		err = d.email.Send(ctx, msg)
	}
	if err != nil {
		d.logger.Warn("Welcome email failed", zap.String("to", identity.Mask(to)), zap.Error(err))
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, code, purpose string, validity time.Duration) (otp.Delivery, error) {
	delivery := otp.Delivery{Channel: models.ChannelEmail, Provider: d.email.Provider(), Simulated: d.email.Simulated()}
	msg, err := OTPMessage(d.app, to, code, purpose, validity)
	if err != nil {
		return delivery, err
	}
	if err := d.email.Send(ctx, msg); err != nil {
		return delivery, err
	}
	return delivery, nil
}
