// Package urgency classifies time-to-deadline into tiers and resolves the
// channels configured for a tier. Everything here is pure; the clock is
// always passed in.
package urgency

import (
	"time"

	"github.com/complytrack/alert-engine/internal/model"
)

type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierEarly    Tier = "early"
)

const day = 24 * time.Hour

// DaysUntil returns ceil((due - now) / 24h). Negative when overdue.
func DaysUntil(due, now time.Time) int {
	diff := due.Sub(now)
	days := int(diff / day)
	if diff > 0 && diff%day != 0 {
		days++
	}
	return days
}

// Classify maps time-to-deadline onto a tier. Total: every input maps to
// exactly one tier.
func Classify(due, now time.Time) Tier {
	return FromDaysBefore(DaysUntil(due, now))
}

// FromDaysBefore classifies a precomputed day offset. Boundaries are
// inclusive upper bounds evaluated in order.
func FromDaysBefore(daysBefore int) Tier {
	switch {
	case daysBefore <= 0:
		return TierCritical
	case daysBefore <= 1:
		return TierHigh
	case daysBefore <= 7:
		return TierMedium
	default:
		return TierEarly
	}
}

// ResolveChannels returns the channels enabled for a tier, deduplicated
// and in preference order. An empty result means no alert may be created
// for that tier.
func ResolveChannels(tier Tier, prefs *model.AlertPreferences) []model.Channel {
	seen := make(map[string]struct{})
	var out []model.Channel
	for _, c := range prefs.ChannelsFor(string(tier)) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, model.Channel(c))
	}
	return out
}
