package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/complytrack/alert-engine/pkg/errors"
)

// X-Alert-ID is mirrored back by the email provider in delivery and
// bounce webhooks, correlating them to the alert.
const headerAlertID = "X-Alert-ID"

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type emailAdapter struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailAdapter(cfg EmailConfig) BatchAdapter {
	return &emailAdapter{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (a *emailAdapter) Send(ctx context.Context, destination string, msg *Message) (string, error) {
	if destination == "" {
		return "", errors.Permanent(fmt.Errorf("empty email address"))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader(headerAlertID, msg.AlertID.String())
	m.SetBody("text/plain", msg.Body)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	// gomail has no context support; run the dial+send on the side and
	// honor the dispatcher's per-call timeout here.
	providerID := uuid.New().String()
	done := make(chan error, 1)
	go func() {
		done <- a.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return "", errors.Transient(ctx.Err())
	case err := <-done:
		if err != nil {
			// SMTP failures at this layer are connection or handshake
			// problems; recipient rejections surface as bounce webhooks.
			return "", errors.Transient(err)
		}
		return providerID, nil
	}
}

func (a *emailAdapter) SendBatch(ctx context.Context, destinations []string, msg *Message) error {
	for _, dest := range destinations {
		if _, err := a.Send(ctx, dest, msg); err != nil {
			return err
		}
	}
	return nil
}
