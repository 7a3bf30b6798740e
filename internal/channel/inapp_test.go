package channel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complytrack/alert-engine/pkg/errors"
)

type recordingBroker struct {
	channel string
	payload []byte
}

func (b *recordingBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.channel = channel
	var err error
	b.payload, err = json.Marshal(message)
	return err
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *recordingBroker) Close() error { return nil }

func TestInAppPublishesToTargetChannel(t *testing.T) {
	broker := &recordingBroker{}
	adapter := NewInAppAdapter(broker)

	msg := &Message{AlertID: uuid.New(), Urgency: "high", Subject: "Due tomorrow: Fire inspection", Body: "body"}
	id, err := adapter.Send(context.Background(), "org-42", msg)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "inapp:org-42", broker.channel)

	var event inAppEvent
	require.NoError(t, json.Unmarshal(broker.payload, &event))
	assert.Equal(t, msg.AlertID, event.AlertID)
	assert.Equal(t, id, event.ID.String())
}

func TestInAppEmptyTargetIsNotRetryable(t *testing.T) {
	adapter := NewInAppAdapter(&recordingBroker{})

	_, err := adapter.Send(context.Background(), "", &Message{AlertID: uuid.New()})
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err), "a missing target cannot be fixed by retrying")
	assert.True(t, errors.IsConfiguration(err))
}
