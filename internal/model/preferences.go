package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AlertPreferences is scoped to an organization and optionally narrowed to
// one user. Exactly one record resolves for any (org, user) pair at send
// time; a user-specific record overrides the organization-wide default.
type AlertPreferences struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	OrganizationID     uuid.UUID      `json:"organization_id" db:"organization_id"`
	UserID             *uuid.UUID     `json:"user_id,omitempty" db:"user_id"`
	CriticalChannels   pq.StringArray `json:"critical_channels" db:"critical_channels"`
	HighChannels       pq.StringArray `json:"high_channels" db:"high_channels"`
	MediumChannels     pq.StringArray `json:"medium_channels" db:"medium_channels"`
	EarlyChannels      pq.StringArray `json:"early_channels" db:"early_channels"`
	AlertDays          pq.Int64Array  `json:"alert_days" db:"alert_days"`
	EscalationEnabled  bool           `json:"escalation_enabled" db:"escalation_enabled"`
	EscalationContacts pq.StringArray `json:"escalation_contacts" db:"escalation_contacts"`
	OverrideEmail      string         `json:"override_email,omitempty" db:"override_email"`
	OverridePhone      string         `json:"override_phone,omitempty" db:"override_phone"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// ChannelsFor returns the configured channel list for a tier, in
// preference order. An empty list means the tier is disabled.
func (p *AlertPreferences) ChannelsFor(tier string) []string {
	switch tier {
	case "critical":
		return p.CriticalChannels
	case "high":
		return p.HighChannels
	case "medium":
		return p.MediumChannels
	default:
		return p.EarlyChannels
	}
}

// PreferencesPatch carries a partial preference update. Nil fields are
// left untouched.
type PreferencesPatch struct {
	CriticalChannels   *[]string `json:"critical_channels,omitempty"`
	HighChannels       *[]string `json:"high_channels,omitempty"`
	MediumChannels     *[]string `json:"medium_channels,omitempty"`
	EarlyChannels      *[]string `json:"early_channels,omitempty"`
	AlertDays          *[]int64  `json:"alert_days,omitempty"`
	EscalationEnabled  *bool     `json:"escalation_enabled,omitempty"`
	EscalationContacts *[]string `json:"escalation_contacts,omitempty"`
	OverrideEmail      *string   `json:"override_email,omitempty"`
	OverridePhone      *string   `json:"override_phone,omitempty"`
}

// DefaultPreferences is the organization-wide fallback used when no
// record exists yet.
func DefaultPreferences(orgID uuid.UUID) *AlertPreferences {
	return &AlertPreferences{
		ID:               uuid.New(),
		OrganizationID:   orgID,
		CriticalChannels: pq.StringArray{"email", "sms", "in_app"},
		HighChannels:     pq.StringArray{"email", "in_app"},
		MediumChannels:   pq.StringArray{"email"},
		EarlyChannels:    pq.StringArray{"email"},
		AlertDays:        pq.Int64Array{30, 7, 1, 0},
	}
}
