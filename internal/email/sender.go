package email

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sender define la interfaz para envio de correos transaccionales.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, htmlBody string) error
}

// SendLoginOTP envia el correo estándar con un código de acceso.
// El asunto varía según el propósito del flujo (signup o login).
func SendLoginOTP(ctx context.Context, s Sender, toEmail, code, purpose string, expiresAt time.Time) error {
	subject := "Your login code"
	if purpose == "signup" {
		subject = "Verify your email"
	}
	body := fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires at %s UTC.</p>",
		code,
		expiresAt.UTC().Format(time.RFC3339),
	)
	return s.Send(ctx, toEmail, subject, body)
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _ string, _ string, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
