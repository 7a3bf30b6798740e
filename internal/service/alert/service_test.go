package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository/memory"
	"github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("alert_service_test")

type fixture struct {
	svc   Service
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Alerts(), store.Audit(), logger.NewLogger(nil), testMetrics)

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return now }
	return &fixture{svc: svc, store: store, now: now}
}

func (f *fixture) seedAlert(t *testing.T, status model.AlertStatus) *model.Alert {
	t.Helper()
	a := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        model.ChannelEmail,
		Urgency:        "critical",
		Recipient:      "owner@example.com",
		ScheduledFor:   f.now.Add(-time.Hour),
		DeadlineTitle:  "Renew license",
		DueAt:          f.now.Add(2 * time.Hour),
		CreatedAt:      f.now.Add(-2 * time.Hour),
	}
	ok, err := f.store.Alerts().Upsert(context.Background(), a)
	require.NoError(t, err)
	require.True(t, ok)

	ctx := context.Background()
	switch status {
	case model.AlertStatusScheduled:
	case model.AlertStatusSent:
		applied, err := f.store.Alerts().MarkSent(ctx, a.ID, "pm-1", 0, f.now)
		f.mustApply(t, applied, err)
	case model.AlertStatusDelivered:
		applied, err := f.store.Alerts().MarkSent(ctx, a.ID, "pm-1", 0, f.now)
		f.mustApply(t, applied, err)
		applied, err = f.store.Alerts().MarkDelivered(ctx, a.ID, f.now)
		f.mustApply(t, applied, err)
	default:
		t.Fatalf("unsupported seed status %s", status)
	}
	return a
}

func (f *fixture) mustApply(t *testing.T, applied bool, err error) {
	t.Helper()
	require.NoError(t, err)
	require.True(t, applied)
}

func (f *fixture) status(t *testing.T, id uuid.UUID) model.AlertStatus {
	t.Helper()
	a, err := f.store.Alerts().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.Status
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedAlert(t, model.AlertStatusScheduled)

	require.NoError(t, f.svc.MarkSent(ctx, a.ID, "pm-42", 1))
	assert.Equal(t, model.AlertStatusSent, f.status(t, a.ID))

	require.NoError(t, f.svc.HandleDelivered(ctx, a.ID))
	assert.Equal(t, model.AlertStatusDelivered, f.status(t, a.ID))

	require.NoError(t, f.svc.Acknowledge(ctx, a.ID, model.AckMethodEmailLink))
	assert.Equal(t, model.AlertStatusAcknowledged, f.status(t, a.ID))

	history, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, e := range history {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"scheduled", "sent", "delivered", "acknowledged"}, actions)
}

func TestDuplicateDeliveryEventAbsorbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedAlert(t, model.AlertStatusSent)

	require.NoError(t, f.svc.HandleDelivered(ctx, a.ID))

	before, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)

	err = f.svc.HandleDelivered(ctx, a.ID)
	assert.ErrorIs(t, err, errors.ErrDuplicateEvent)

	after, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "absorbed duplicate leaves no audit trace")
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedAlert(t, model.AlertStatusDelivered)
	require.NoError(t, f.svc.Acknowledge(ctx, a.ID, model.AckMethodInAppButton))

	assert.ErrorIs(t, f.svc.HandleDelivered(ctx, a.ID), errors.ErrDuplicateEvent)
	assert.ErrorIs(t, f.svc.HandleDeliveryFailure(ctx, a.ID, "late bounce"), errors.ErrDuplicateEvent)
	assert.ErrorIs(t, f.svc.Acknowledge(ctx, a.ID, model.AckMethodEmailLink), errors.ErrDuplicateEvent)
	assert.Equal(t, model.AlertStatusAcknowledged, f.status(t, a.ID))
}

func TestDeliveryFailureAfterSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedAlert(t, model.AlertStatusSent)

	require.NoError(t, f.svc.HandleDeliveryFailure(ctx, a.ID, "mailbox full"))
	assert.Equal(t, model.AlertStatusFailed, f.status(t, a.ID))

	stored, err := f.store.Alerts().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "mailbox full", stored.LastError)
}

func TestSnoozeOnlyWhileScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scheduled := f.seedAlert(t, model.AlertStatusScheduled)
	until := f.now.Add(3 * time.Hour)
	require.NoError(t, f.svc.Snooze(ctx, scheduled.ID, until))

	stored, err := f.store.Alerts().Get(ctx, scheduled.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SnoozedUntil)
	assert.True(t, stored.SnoozedUntil.Equal(until))
	assert.Equal(t, model.AlertStatusScheduled, stored.Status, "snooze does not change status")

	sent := f.seedAlert(t, model.AlertStatusSent)
	err = f.svc.Snooze(ctx, sent.ID, until)
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrConflict, appErr.Code)
}

func TestSnoozeRejectsPast(t *testing.T) {
	f := newFixture(t)
	a := f.seedAlert(t, model.AlertStatusScheduled)

	err := f.svc.Snooze(context.Background(), a.ID, f.now.Add(-time.Minute))
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrBadRequest, appErr.Code)
}

func TestHandleProviderMessageEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedAlert(t, model.AlertStatusSent)

	require.NoError(t, f.svc.HandleProviderMessageEvent(ctx, "pm-1", "delivered"))
	assert.Equal(t, model.AlertStatusDelivered, f.status(t, a.ID))

	err := f.svc.HandleProviderMessageEvent(ctx, "no-such-message", "delivered")
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestHandleInboundSMS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sms := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        model.ChannelSMS,
		Urgency:        "critical",
		Recipient:      "+15559876543",
		ScheduledFor:   f.now.Add(-time.Hour),
		DeadlineTitle:  "Safety inspection",
		DueAt:          f.now,
		CreatedAt:      f.now.Add(-time.Hour),
	}
	ok, err := f.store.Alerts().Upsert(ctx, sms)
	require.NoError(t, err)
	require.True(t, ok)
	applied, err := f.store.Alerts().MarkSent(ctx, sms.ID, "pm-sms", 0, f.now)
	f.mustApply(t, applied, err)

	// Non-keyword body is ignored.
	require.NoError(t, f.svc.HandleInboundSMS(ctx, sms.Recipient, "thanks, on it"))
	assert.Equal(t, model.AlertStatusSent, f.status(t, sms.ID))

	// Keyword acknowledges the latest open SMS alert.
	require.NoError(t, f.svc.HandleInboundSMS(ctx, sms.Recipient, "  done "))
	stored, err := f.store.Alerts().Get(ctx, sms.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusAcknowledged, stored.Status)
	require.NotNil(t, stored.AckMethod)
	assert.Equal(t, model.AckMethodSMSReply, *stored.AckMethod)

	// Unknown sender is a quiet no-op.
	require.NoError(t, f.svc.HandleInboundSMS(ctx, "+15550000001", "DONE"))
}

func TestIsAckKeyword(t *testing.T) {
	assert.True(t, IsAckKeyword("DONE"))
	assert.True(t, IsAckKeyword("ack"))
	assert.True(t, IsAckKeyword("  Done\n"))
	assert.False(t, IsAckKeyword("done it"))
	assert.False(t, IsAckKeyword(""))
}

func TestLiveUrgencyRecomputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        model.ChannelEmail,
		Urgency:        "early",
		Recipient:      "owner@example.com",
		ScheduledFor:   f.now.Add(-30 * 24 * time.Hour),
		DeadlineTitle:  "Annual filing",
		DueAt:          f.now.Add(12 * time.Hour),
		CreatedAt:      f.now.Add(-30 * 24 * time.Hour),
	}
	ok, err := f.store.Alerts().Upsert(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	view, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "early", view.Urgency, "stored urgency stays frozen")
	assert.Equal(t, "high", view.LiveUrgency, "display urgency tracks the clock")
}
