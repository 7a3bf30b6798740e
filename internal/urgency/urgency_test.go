package urgency

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/complytrack/alert-engine/internal/model"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{"exactly now", now, 0},
		{"one hour ahead rounds up", now.Add(time.Hour), 1},
		{"exactly 24h", now.Add(24 * time.Hour), 1},
		{"25h rounds up to 2", now.Add(25 * time.Hour), 2},
		{"exactly 7 days", now.Add(7 * 24 * time.Hour), 7},
		{"one hour overdue", now.Add(-time.Hour), 0},
		{"36h overdue", now.Add(-36 * time.Hour), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.due, now))
		})
	}
}

func TestFromDaysBefore(t *testing.T) {
	assert.Equal(t, TierCritical, FromDaysBefore(-3))
	assert.Equal(t, TierCritical, FromDaysBefore(0))
	assert.Equal(t, TierHigh, FromDaysBefore(1))
	assert.Equal(t, TierMedium, FromDaysBefore(2))
	assert.Equal(t, TierMedium, FromDaysBefore(7))
	assert.Equal(t, TierEarly, FromDaysBefore(8))
	assert.Equal(t, TierEarly, FromDaysBefore(30))
}

// Every instant maps to exactly one tier, and tiers only escalate as the
// deadline approaches.
func TestClassifyMonotonic(t *testing.T) {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	rank := map[Tier]int{TierEarly: 0, TierMedium: 1, TierHigh: 2, TierCritical: 3}

	prev := Classify(due, due.Add(-60*24*time.Hour))
	for h := 60 * 24; h >= -48; h -= 6 {
		now := due.Add(-time.Duration(h) * time.Hour)
		tier := Classify(due, now)
		assert.Contains(t, rank, tier)
		assert.GreaterOrEqual(t, rank[tier], rank[prev],
			"tier regressed at %d hours before due", h)
		prev = tier
	}
}

func TestResolveChannels(t *testing.T) {
	prefs := &model.AlertPreferences{
		CriticalChannels: pq.StringArray{"email", "sms", "email", "in_app"},
		HighChannels:     pq.StringArray{"email", "in_app"},
		MediumChannels:   pq.StringArray{},
		EarlyChannels:    pq.StringArray{"email"},
	}

	assert.Equal(t,
		[]model.Channel{model.ChannelEmail, model.ChannelSMS, model.ChannelInApp},
		ResolveChannels(TierCritical, prefs),
		"duplicates collapse, first occurrence wins")

	assert.Equal(t,
		[]model.Channel{model.ChannelEmail, model.ChannelInApp},
		ResolveChannels(TierHigh, prefs))

	assert.Empty(t, ResolveChannels(TierMedium, prefs), "empty list disables the tier")
}
