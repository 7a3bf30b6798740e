package model

import (
	"time"

	"github.com/google/uuid"
)

type RecurrenceType string

const (
	RecurrenceNone       RecurrenceType = ""
	RecurrenceWeekly     RecurrenceType = "weekly"
	RecurrenceMonthly    RecurrenceType = "monthly"
	RecurrenceQuarterly  RecurrenceType = "quarterly"
	RecurrenceSemiAnnual RecurrenceType = "semi_annual"
	RecurrenceAnnual     RecurrenceType = "annual"
	RecurrenceCustom     RecurrenceType = "custom"
)

type RecurrenceBasis string

const (
	RecurrenceBasisDueDate        RecurrenceBasis = "due_date"
	RecurrenceBasisCompletionDate RecurrenceBasis = "completion_date"
)

// Deadline is a snapshot of upstream deadline state, supplied by trigger
// events. Recurrence rolling is an upstream concern; the engine only sees
// the resulting "reopened" events.
type Deadline struct {
	ID                     uuid.UUID       `json:"id" db:"id"`
	OrganizationID         uuid.UUID       `json:"organization_id" db:"organization_id"`
	UserID                 *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Title                  string          `json:"title" db:"title"`
	DueAt                  time.Time       `json:"due_at" db:"due_at"`
	RecurrenceType         RecurrenceType  `json:"recurrence_type,omitempty" db:"recurrence_type"`
	RecurrenceIntervalDays int             `json:"recurrence_interval_days,omitempty" db:"recurrence_interval_days"`
	RecurrenceBasis        RecurrenceBasis `json:"recurrence_basis,omitempty" db:"recurrence_basis"`
	AssigneeEmail          string          `json:"assignee_email,omitempty" db:"assignee_email"`
	AssigneePhone          string          `json:"assignee_phone,omitempty" db:"assignee_phone"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DeletedAt              *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt              time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
}

// Active reports whether the deadline should still generate alerts.
func (d *Deadline) Active() bool {
	return d.CompletedAt == nil && d.DeletedAt == nil
}

type DeadlineEventType string

const (
	DeadlineEventCreated   DeadlineEventType = "created"
	DeadlineEventUpdated   DeadlineEventType = "updated"
	DeadlineEventReopened  DeadlineEventType = "reopened"
	DeadlineEventCompleted DeadlineEventType = "completed"
	DeadlineEventDeleted   DeadlineEventType = "deleted"
)

// DeadlineEvent is the scheduling trigger consumed from the rest of the
// system. The full snapshot travels with the event; the engine never
// fetches upstream state it was not given.
type DeadlineEvent struct {
	Type     DeadlineEventType `json:"type" binding:"required"`
	Deadline Deadline          `json:"deadline" binding:"required"`
}
