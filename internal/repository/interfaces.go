package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
)

type (
	// AlertRepository owns alert rows and their guarded status
	// transitions. Every transition method is conditional on the current
	// status and returns false when the guard did not match, so duplicate
	// or out-of-order events degrade to no-ops. Each applied transition
	// appends its audit entry in the same transaction.
	AlertRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Alert, error)

		// Upsert inserts an alert keyed by (deadline, channel,
		// scheduled_for, recipient); returns false when the row already
		// existed.
		Upsert(ctx context.Context, alert *model.Alert) (bool, error)

		ListByDeadline(ctx context.Context, deadlineID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error)
		ListByOrganization(ctx context.Context, orgID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error)

		// CancelFutureScheduled cancels alerts still in scheduled status
		// with scheduled_for in the future. In-flight and completed
		// alerts are immutable history.
		CancelFutureScheduled(ctx context.Context, deadlineID uuid.UUID, now time.Time) (int64, error)

		// ClaimDue leases due, unsnoozed scheduled alerts to the calling
		// dispatcher pass. A claim held by a crashed worker expires at
		// its lease deadline.
		ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*model.Alert, error)
		ReleaseClaim(ctx context.Context, id uuid.UUID) error

		MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, retryCount int, at time.Time) (bool, error)
		MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryCount int, at time.Time) (bool, error)
		MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
		MarkDeliveryFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
		Acknowledge(ctx context.Context, id uuid.UUID, method model.AckMethod, at time.Time) (bool, error)
		Snooze(ctx context.Context, id uuid.UUID, until, at time.Time) (bool, error)

		FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Alert, error)
		LatestOpenSMS(ctx context.Context, phone string) (*model.Alert, error)

		// FindEscalatable returns critical alerts that have failed, or
		// sat unacknowledged in sent/delivered since before cutoff, and
		// have not yet escalated.
		FindEscalatable(ctx context.Context, cutoff, now time.Time, limit int) ([]*model.Alert, error)

		// CreateEscalations atomically stamps the originating alert and
		// inserts the escalation alerts. Returns false when another pass
		// already escalated it.
		CreateEscalations(ctx context.Context, origin *model.Alert, escalations []*model.Alert, at time.Time) (bool, error)
	}

	// DeadlineRepository stores upstream deadline snapshots.
	DeadlineRepository interface {
		Upsert(ctx context.Context, d *model.Deadline) error
		Get(ctx context.Context, id uuid.UUID) (*model.Deadline, error)
		ListActive(ctx context.Context, limit, offset int) ([]*model.Deadline, error)
		ListActiveByScope(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) ([]*model.Deadline, error)
	}

	// PreferenceRepository stores alert preference records, one per
	// (organization, user) scope.
	PreferenceRepository interface {
		Get(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error)
		Upsert(ctx context.Context, p *model.AlertPreferences) error
	}

	// AuditRepository is append-only. There is deliberately no update or
	// delete operation.
	AuditRepository interface {
		Append(ctx context.Context, entry *model.AuditLogEntry) error
		ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error)
	}
)
