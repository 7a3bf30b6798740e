package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository/memory"
	alertsvc "github.com/complytrack/alert-engine/internal/service/alert"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("webhook_handler_test")

type env struct {
	router *gin.Engine
	store  *memory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := logger.NewLogger(nil)
	alerts := alertsvc.NewService(store.Alerts(), store.Audit(), log, testMetrics)

	router := gin.New()
	NewHandler(alerts, log).RegisterRoutes(router.Group("/api/v1"))
	return &env{router: router, store: store}
}

func (e *env) seedSent(t *testing.T, ch model.Channel, providerID string) *model.Alert {
	t.Helper()
	now := time.Now().UTC()
	a := &model.Alert{
		ID:             uuid.New(),
		DeadlineID:     uuid.New(),
		OrganizationID: uuid.New(),
		Channel:        ch,
		Urgency:        "high",
		Recipient:      "owner@example.com",
		ScheduledFor:   now.Add(-time.Hour),
		DeadlineTitle:  "Fire inspection",
		DueAt:          now.Add(24 * time.Hour),
		CreatedAt:      now.Add(-time.Hour),
	}
	if ch == model.ChannelSMS {
		a.Recipient = "+15551112222"
	}
	ctx := context.Background()
	ok, err := e.store.Alerts().Upsert(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	applied, err := e.store.Alerts().MarkSent(ctx, a.ID, providerID, 0, now)
	require.NoError(t, err)
	require.True(t, applied)
	return a
}

func (e *env) post(t *testing.T, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) status(t *testing.T, id uuid.UUID) model.AlertStatus {
	t.Helper()
	a, err := e.store.Alerts().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.Status
}

func TestEmailWebhookDelivered(t *testing.T) {
	e := newEnv(t)
	a := e.seedSent(t, model.ChannelEmail, "pm-email")

	w := e.post(t, "/api/v1/webhooks/email", gin.H{
		"event":    "delivered",
		"alert_id": a.ID.String(),
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusDelivered, e.status(t, a.ID))
}

func TestEmailWebhookBounce(t *testing.T) {
	e := newEnv(t)
	a := e.seedSent(t, model.ChannelEmail, "pm-email")

	w := e.post(t, "/api/v1/webhooks/email", gin.H{
		"event":    "bounced",
		"alert_id": a.ID.String(),
		"reason":   "mailbox does not exist",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusFailed, e.status(t, a.ID))
}

func TestEmailWebhookDuplicateAbsorbed(t *testing.T) {
	e := newEnv(t)
	a := e.seedSent(t, model.ChannelEmail, "pm-email")

	payload := gin.H{"event": "delivered", "alert_id": a.ID.String()}
	assert.Equal(t, http.StatusOK, e.post(t, "/api/v1/webhooks/email", payload).Code)
	assert.Equal(t, http.StatusOK, e.post(t, "/api/v1/webhooks/email", payload).Code,
		"replayed event returns 200 so the provider stops retrying")
	assert.Equal(t, model.AlertStatusDelivered, e.status(t, a.ID))
}

func TestEmailWebhookMalformed(t *testing.T) {
	e := newEnv(t)

	w := e.post(t, "/api/v1/webhooks/email", gin.H{"event": "exploded", "alert_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.post(t, "/api/v1/webhooks/email", gin.H{"event": "delivered"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "alert_id is required")
}

func TestSMSWebhookByProviderMessageID(t *testing.T) {
	e := newEnv(t)
	a := e.seedSent(t, model.ChannelSMS, "pm-sms-7")

	w := e.post(t, "/api/v1/webhooks/sms", gin.H{
		"message_id": "pm-sms-7",
		"status":     "undelivered",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusFailed, e.status(t, a.ID))
}

func TestSMSWebhookUnknownMessageAbsorbed(t *testing.T) {
	e := newEnv(t)

	w := e.post(t, "/api/v1/webhooks/sms", gin.H{
		"message_id": "never-sent",
		"status":     "delivered",
	})
	assert.Equal(t, http.StatusOK, w.Code, "a retry cannot fix an unknown message id")
}

func TestInboundSMSAcknowledges(t *testing.T) {
	e := newEnv(t)
	a := e.seedSent(t, model.ChannelSMS, "pm-sms-9")

	w := e.post(t, "/api/v1/webhooks/sms/inbound", gin.H{
		"from": a.Recipient,
		"body": "DONE",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.AlertStatusAcknowledged, e.status(t, a.ID))
}
