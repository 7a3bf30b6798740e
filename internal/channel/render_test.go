package channel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/complytrack/alert-engine/internal/model"
)

func renderAlert(ch model.Channel, tier string) *model.Alert {
	due := time.Date(2026, 5, 15, 17, 0, 0, 0, time.UTC)
	return &model.Alert{
		ID:            uuid.New(),
		Channel:       ch,
		Urgency:       tier,
		DeadlineTitle: "OSHA safety audit",
		ScheduledFor:  due.Add(-24 * time.Hour),
		DueAt:         due,
	}
}

func TestRenderSMS(t *testing.T) {
	a := renderAlert(model.ChannelSMS, "critical")
	msg := Render(a, "")

	assert.Equal(t, "[CRITICAL] OSHA safety audit due May 15, 2026. Reply DONE to acknowledge.", msg.Body)
	assert.Empty(t, msg.Subject)
	assert.Empty(t, msg.HTMLBody)
}

func TestRenderEmailSubjects(t *testing.T) {
	tests := []struct {
		tier string
		want string
	}{
		{"critical", "ACTION REQUIRED: OSHA safety audit due May 15, 2026"},
		{"high", "Due tomorrow: OSHA safety audit"},
		{"medium", "Due soon: OSHA safety audit (May 15, 2026)"},
		{"early", "Upcoming deadline: OSHA safety audit (May 15, 2026)"},
	}
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			msg := Render(renderAlert(model.ChannelEmail, tt.tier), "")
			assert.Equal(t, tt.want, msg.Subject)
		})
	}
}

func TestRenderEmailCriticalTreatment(t *testing.T) {
	msg := Render(renderAlert(model.ChannelEmail, "critical"), "https://alerts.example.com")

	assert.Contains(t, msg.HTMLBody, "#dc2626", "critical emails get the red banner")
	assert.Contains(t, msg.HTMLBody, "immediate attention")
	assert.Contains(t, msg.HTMLBody, "/api/v1/alerts/")
	assert.Contains(t, msg.HTMLBody, "/acknowledge")

	calm := Render(renderAlert(model.ChannelEmail, "early"), "https://alerts.example.com")
	assert.NotContains(t, calm.HTMLBody, "#dc2626")
}

func TestRenderAckURLOmittedWithoutBase(t *testing.T) {
	msg := Render(renderAlert(model.ChannelEmail, "critical"), "")
	assert.NotContains(t, msg.HTMLBody, "acknowledge")
}
