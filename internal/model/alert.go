package model

import (
	"time"

	"github.com/google/uuid"
)

type AlertStatus string

const (
	AlertStatusScheduled    AlertStatus = "scheduled"
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusDelivered    AlertStatus = "delivered"
	AlertStatusFailed       AlertStatus = "failed"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusCancelled    AlertStatus = "cancelled"
)

// IsTerminal reports whether no further transition can move the alert.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusFailed || s == AlertStatusAcknowledged || s == AlertStatusCancelled
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

type AckMethod string

const (
	AckMethodEmailLink   AckMethod = "email_link"
	AckMethodSMSReply    AckMethod = "sms_reply"
	AckMethodInAppButton AckMethod = "in_app_button"
)

// Alert is one scheduled notification for one deadline, channel and
// recipient. Rows are never deleted; they are the compliance record.
type Alert struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	DeadlineID        uuid.UUID   `json:"deadline_id" db:"deadline_id"`
	OrganizationID    uuid.UUID   `json:"organization_id" db:"organization_id"`
	UserID            *uuid.UUID  `json:"user_id,omitempty" db:"user_id"`
	Channel           Channel     `json:"channel" db:"channel"`
	Urgency           string      `json:"urgency" db:"urgency"`
	Recipient         string      `json:"recipient" db:"recipient"`
	ScheduledFor      time.Time   `json:"scheduled_for" db:"scheduled_for"`
	Status            AlertStatus `json:"status" db:"status"`
	SentAt            *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
	AcknowledgedAt    *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AckMethod         *AckMethod  `json:"ack_method,omitempty" db:"ack_method"`
	LastError         string      `json:"last_error,omitempty" db:"last_error"`
	RetryCount        int         `json:"retry_count" db:"retry_count"`
	ProviderMessageID string      `json:"provider_message_id,omitempty" db:"provider_message_id"`
	SnoozedUntil      *time.Time  `json:"snoozed_until,omitempty" db:"snoozed_until"`
	ClaimedUntil      *time.Time  `json:"-" db:"claimed_until"`
	EscalatedAt       *time.Time  `json:"escalated_at,omitempty" db:"escalated_at"`
	EscalatedFrom     *uuid.UUID  `json:"escalated_from,omitempty" db:"escalated_from"`
	DeadlineTitle     string      `json:"deadline_title" db:"deadline_title"`
	DueAt             time.Time   `json:"due_at" db:"due_at"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

// AlertView is the read-path shape: the stored urgency frozen at schedule
// time plus a display urgency recomputed against the current clock.
type AlertView struct {
	Alert
	LiveUrgency string `json:"live_urgency"`
}
