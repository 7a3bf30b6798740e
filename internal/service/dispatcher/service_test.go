package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complytrack/alert-engine/internal/channel"
	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository/memory"
	alertsvc "github.com/complytrack/alert-engine/internal/service/alert"
	"github.com/complytrack/alert-engine/internal/service/audit"
	apperrors "github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
	"github.com/complytrack/alert-engine/pkg/ratelimit"
)

var testMetrics = metrics.NewMetrics("dispatcher_test")

// scriptedAdapter returns its scripted errors in order, then succeeds.
type scriptedAdapter struct {
	mu     sync.Mutex
	script []error
	calls  int
}

func (a *scriptedAdapter) Send(_ context.Context, _ string, _ *channel.Message) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.script) > 0 {
		err := a.script[0]
		a.script = a.script[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("pm-%d", a.calls), nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

type harness struct {
	svc      *Service
	store    *memory.Store
	adapter  *scriptedAdapter
	backoffs []time.Duration
}

func newHarness(t *testing.T, cfg Config, adapters map[model.Channel]channel.Adapter, limiter ratelimit.Limiter) *harness {
	t.Helper()
	store := memory.NewStore()
	log := logger.NewLogger(nil)
	alerts := alertsvc.NewService(store.Alerts(), store.Audit(), log, testMetrics)
	auditor := audit.NewService(store.Audit(), log)

	h := &harness{store: store}
	h.svc = NewService(cfg, store.Alerts(), alerts, adapters, limiter, auditor, log, testMetrics)
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		h.backoffs = append(h.backoffs, d)
		return nil
	}
	return h
}

func (h *harness) seedDue(t *testing.T, ch model.Channel) *model.Alert {
	t.Helper()
	a := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        ch,
		Urgency:        "critical",
		Recipient:      "owner@example.com",
		ScheduledFor:   time.Now().UTC().Add(-time.Minute),
		DeadlineTitle:  "Submit tax filing",
		DueAt:          time.Now().UTC().Add(time.Hour),
		CreatedAt:      time.Now().UTC().Add(-time.Minute),
	}
	if ch == model.ChannelSMS {
		a.Recipient = "+15551230000"
	}
	ok, err := h.store.Alerts().Upsert(context.Background(), a)
	require.NoError(t, err)
	require.True(t, ok)
	return a
}

func (h *harness) get(t *testing.T, id uuid.UUID) *model.Alert {
	t.Helper()
	a, err := h.store.Alerts().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func TestDispatchSuccess(t *testing.T) {
	adapter := &scriptedAdapter{}
	h := newHarness(t, Config{}, map[model.Channel]channel.Adapter{model.ChannelEmail: adapter}, nil)
	a := h.seedDue(t, model.ChannelEmail)

	n, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusSent, stored.Status)
	assert.Equal(t, "pm-1", stored.ProviderMessageID)
	assert.Zero(t, stored.RetryCount)
	assert.Nil(t, stored.ClaimedUntil)
}

func TestDispatchRetriesTransientThenSucceeds(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{
		apperrors.Transient(errors.New("gateway timeout")),
		apperrors.Transient(errors.New("gateway timeout")),
		nil,
	}}
	h := newHarness(t, Config{BackoffBase: time.Second}, map[model.Channel]channel.Adapter{model.ChannelEmail: adapter}, nil)
	a := h.seedDue(t, model.ChannelEmail)

	_, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusSent, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, 3, adapter.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.backoffs, "backoff doubles per attempt")

	// The transient attempts left audit entries even though the alert
	// ultimately went out.
	history, err := h.store.Audit().ListByAlert(context.Background(), a.ID)
	require.NoError(t, err)
	var transientFailures int
	for _, e := range history {
		if e.Action == model.AuditActionFailed {
			transientFailures++
		}
	}
	assert.Equal(t, 2, transientFailures)
}

func TestDispatchPermanentFailureSkipsRetry(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{
		apperrors.Permanent(errors.New("invalid recipient")),
	}}
	h := newHarness(t, Config{}, map[model.Channel]channel.Adapter{model.ChannelEmail: adapter}, nil)
	a := h.seedDue(t, model.ChannelEmail)

	_, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusFailed, stored.Status)
	assert.Zero(t, stored.RetryCount, "permanent failures never touch the retry counter")
	assert.Equal(t, 1, adapter.callCount())
	assert.Empty(t, h.backoffs)
	assert.Contains(t, stored.LastError, "invalid recipient")
}

func TestDispatchExhaustsAttempts(t *testing.T) {
	boom := apperrors.Transient(errors.New("smtp unreachable"))
	adapter := &scriptedAdapter{script: []error{boom, boom, boom}}
	h := newHarness(t, Config{MaxAttempts: 3}, map[model.Channel]channel.Adapter{model.ChannelEmail: adapter}, nil)
	a := h.seedDue(t, model.ChannelEmail)

	_, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, 3, adapter.callCount())
	assert.Len(t, h.backoffs, 2, "no sleep after the final attempt")
}

func TestDispatchThrottledSMSIsDeferred(t *testing.T) {
	adapter := &scriptedAdapter{}
	h := newHarness(t, Config{}, map[model.Channel]channel.Adapter{model.ChannelSMS: adapter}, denyLimiter{})
	a := h.seedDue(t, model.ChannelSMS)

	_, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusScheduled, stored.Status, "throttled send stays scheduled")
	assert.Nil(t, stored.ClaimedUntil, "claim released for the next pass")
	assert.Zero(t, adapter.callCount())
}

func TestDispatchMissingAdapterFailsAlert(t *testing.T) {
	h := newHarness(t, Config{}, map[model.Channel]channel.Adapter{}, nil)
	a := h.seedDue(t, model.ChannelEmail)

	_, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)

	stored := h.get(t, a.ID)
	assert.Equal(t, model.AlertStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no adapter")
}

func TestClaimExcludesSnoozedAndFuture(t *testing.T) {
	adapter := &scriptedAdapter{}
	h := newHarness(t, Config{}, map[model.Channel]channel.Adapter{model.ChannelEmail: adapter}, nil)

	due := h.seedDue(t, model.ChannelEmail)

	future := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        model.ChannelEmail,
		Urgency:        "high",
		Recipient:      "owner@example.com",
		ScheduledFor:   time.Now().UTC().Add(time.Hour),
		DeadlineTitle:  "Not due yet",
		DueAt:          time.Now().UTC().Add(2 * time.Hour),
		CreatedAt:      time.Now().UTC(),
	}
	ok, err := h.store.Alerts().Upsert(context.Background(), future)
	require.NoError(t, err)
	require.True(t, ok)

	snoozed := h.seedDue(t, model.ChannelEmail)
	until := time.Now().UTC().Add(time.Hour)
	applied, err := h.store.Alerts().Snooze(context.Background(), snoozed.ID, until, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)

	n, err := h.svc.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the due, unsnoozed alert is claimed")

	assert.Equal(t, model.AlertStatusSent, h.get(t, due.ID).Status)
	assert.Equal(t, model.AlertStatusScheduled, h.get(t, snoozed.ID).Status)
	assert.Equal(t, model.AlertStatusScheduled, h.get(t, future.ID).Status)
}

func TestLeaseDurationCoversWorstCase(t *testing.T) {
	cfg := Config{MaxAttempts: 3, SendTimeout: 30 * time.Second, BackoffBase: time.Second}.withDefaults()
	// 3 attempts of 30s plus 1s+2s backoff, doubled for headroom.
	assert.Equal(t, 2*(90*time.Second+3*time.Second), cfg.LeaseDuration())
}
