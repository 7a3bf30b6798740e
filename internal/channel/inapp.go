package channel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/messaging"
)

// inAppAdapter publishes to the application's in-app notification stream.
// There is no provider callback path for this channel; delivery ends at
// the broker.
type inAppAdapter struct {
	broker messaging.Broker
}

func NewInAppAdapter(broker messaging.Broker) Adapter {
	return &inAppAdapter{broker: broker}
}

type inAppEvent struct {
	ID        uuid.UUID `json:"id"`
	AlertID   uuid.UUID `json:"alert_id"`
	Target    string    `json:"target"`
	Urgency   string    `json:"urgency"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *inAppAdapter) Send(ctx context.Context, destination string, msg *Message) (string, error) {
	if destination == "" {
		return "", errors.Permanent(errEmptyTarget)
	}

	event := inAppEvent{
		ID:        uuid.New(),
		AlertID:   msg.AlertID,
		Target:    destination,
		Urgency:   msg.Urgency,
		Subject:   msg.Subject,
		Body:      msg.Body,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.broker.Publish(ctx, "inapp:"+destination, event); err != nil {
		return "", errors.Transient(err)
	}
	return event.ID.String(), nil
}

var errEmptyTarget = errors.Configuration("empty in-app target")
