package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/complytrack/alert-engine/pkg/circuitbreaker"
	"github.com/complytrack/alert-engine/pkg/errors"
)

type SMSConfig struct {
	BaseURL   string
	AccountID string
	Token     string
	From      string
}

type smsAdapter struct {
	cfg    SMSConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
}

func NewSMSAdapter(cfg SMSConfig) BatchAdapter {
	return &smsAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sms-provider",
			MaxRequests: 5,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
		}),
	}
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
	Tag  string `json:"tag"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (a *smsAdapter) Send(ctx context.Context, destination string, msg *Message) (string, error) {
	if destination == "" {
		return "", errors.Permanent(fmt.Errorf("empty phone number"))
	}

	payload, err := json.Marshal(smsRequest{
		From: a.cfg.From,
		To:   destination,
		Body: msg.Body,
		Tag:  msg.AlertID.String(),
	})
	if err != nil {
		return "", errors.Permanent(err)
	}

	var providerID string
	cbErr := a.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/accounts/%s/messages", a.cfg.BaseURL, a.cfg.AccountID),
			bytes.NewReader(payload))
		if err != nil {
			return errors.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)

		resp, err := a.client.Do(req)
		if err != nil {
			return errors.Transient(err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

		switch {
		case resp.StatusCode >= 500:
			return errors.Transient(fmt.Errorf("provider %d: %s", resp.StatusCode, body))
		case resp.StatusCode >= 400:
			// Bad recipient, bad template: retrying cannot help.
			return errors.Permanent(fmt.Errorf("provider %d: %s", resp.StatusCode, body))
		}

		var out smsResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return errors.Transient(fmt.Errorf("malformed provider response: %w", err))
		}
		if out.Error != "" {
			return errors.Permanent(fmt.Errorf("provider rejected message: %s", out.Error))
		}
		providerID = out.MessageID
		return nil
	})
	if cbErr != nil {
		// A tripped breaker surfaces as a plain error, which the
		// dispatcher treats as transient.
		return "", cbErr
	}
	return providerID, nil
}

func (a *smsAdapter) SendBatch(ctx context.Context, destinations []string, msg *Message) error {
	for _, dest := range destinations {
		if _, err := a.Send(ctx, dest, msg); err != nil {
			return err
		}
	}
	return nil
}
