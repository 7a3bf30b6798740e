package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLogEntry struct {
	ID             uuid.UUID `json:"id" db:"id"`
	AlertID        uuid.UUID `json:"alert_id" db:"alert_id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Action         string    `json:"action" db:"action"`
	Details        string    `json:"details" db:"details"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	AuditActionScheduled    = "scheduled"
	AuditActionSent         = "sent"
	AuditActionDelivered    = "delivered"
	AuditActionFailed       = "failed"
	AuditActionAcknowledged = "acknowledged"
	AuditActionSnoozed      = "snoozed"
	AuditActionCancelled    = "cancelled"
	AuditActionEscalated    = "escalated"
)
