// Package channel holds the boundary adapters to the delivery transports.
// Adapters classify their failures as transient or permanent; retry policy
// lives in the dispatcher, not here.
package channel

import (
	"context"

	"github.com/google/uuid"
)

// Message is the rendered content handed to an adapter.
type Message struct {
	AlertID  uuid.UUID
	Urgency  string
	Subject  string
	Body     string
	HTMLBody string
}

// Adapter sends one message to one destination. The returned provider
// message id correlates asynchronous provider webhooks back to the alert.
type Adapter interface {
	Send(ctx context.Context, destination string, msg *Message) (providerMessageID string, err error)
}

// BatchAdapter is the optional fan-out surface email and SMS expose for
// non-alert use. The engine itself only ever single-sends.
type BatchAdapter interface {
	Adapter
	SendBatch(ctx context.Context, destinations []string, msg *Message) error
}
