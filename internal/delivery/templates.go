package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// PurposeLabel turns "password-reset" into "Password Reset".
func PurposeLabel(purpose string) string {
	if purpose == "" {
		return "Verification"
	}
	return titleCaser.String(strings.NewReplacer("-", " ", "_", " ").Replace(purpose))
}

var otpHTML = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: #667eea; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0;">{{.App}}</h1>
  </div>
  <div style="padding: 40px; background: #f9f9f9; border: 1px solid #e0e0e0;">
    <h2 style="color: #333; margin-top: 0;">{{.Label}} Code</h2>
    <p style="color: #666; font-size: 16px;">Use this OTP to complete your verification:</p>
    <div style="font-size: 36px; font-weight: bold; letter-spacing: 8px; color: #667eea; text-align: center; font-family: monospace;">{{.Code}}</div>
    <p style="color: #666; font-size: 14px;">This OTP is valid for <strong>{{.Minutes}} minutes</strong>. Please do not share this code with anyone.</p>
    <p style="color: #856404; font-size: 13px;"><strong>Note:</strong> If you didn't request this OTP, please ignore this email.</p>
  </div>
</div>`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: #667eea; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0;">{{.App}}</h1>
  </div>
  <div style="padding: 40px; background: #f9f9f9; border: 1px solid #e0e0e0;">
    <h2 style="color: #333; margin-top: 0;">Welcome to {{.App}}{{if .Name}}, {{.Name}}{{end}}!</h2>
    <p style="color: #666; font-size: 16px;">Thank you for registering with {{.App}}. Your account is ready.</p>
    <p style="color: #666; font-size: 14px;">You can now login and start using our services.</p>
  </div>
</div>`))

func minutes(validity time.Duration) int {
	return max(int(validity.Round(time.Minute)/time.Minute), 1)
}

// OTPMessage renders the OTP email for purpose.
func OTPMessage(app, to, code, purpose string, validity time.Duration) (Message, error) {
	data := struct {
		App, Label, Code string
		Minutes          int
	}{app, PurposeLabel(purpose), code, minutes(validity)}

	var html bytes.Buffer
	if err := otpHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your OTP Code: %s - %s", code, app),
		Text:    fmt.Sprintf("Your %s %s OTP is: %s. Valid for %d minutes.", app, data.Label, code, data.Minutes),
		HTML:    html.String(),
	}, nil
}

// SMSText is the body sent over SMS and carrier gateways.
func SMSText(app, code string, validity time.Duration) string {
	return fmt.Sprintf("Your %s OTP is: %s. Valid for %d minutes.", app, code, minutes(validity))
}

func WelcomeMessage(app, to, name string) (Message, error) {
	var html bytes.Buffer
	if err := welcomeHTML.Execute(&html, struct{ App, Name string }{app, name}); err != nil {
		return Message{}, fmt.Errorf("render welcome email: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to %s!", app),
		Text:    fmt.Sprintf("Welcome to %s! Your account has been created.", app),
		HTML:    html.String(),
	}, nil
}
