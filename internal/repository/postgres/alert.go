package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
)

type alertRepository struct {
	BaseRepository
}

func NewAlertRepository(base BaseRepository) repository.AlertRepository {
	return &alertRepository{base}
}

const alertColumns = `
	id, deadline_id, organization_id, user_id, channel, urgency, recipient,
	scheduled_for, status, sent_at, delivered_at, acknowledged_at, ack_method,
	last_error, retry_count, provider_message_id, snoozed_until, claimed_until,
	escalated_at, escalated_from, deadline_title, due_at, created_at, updated_at
`

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var alert model.Alert
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &alert, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) Upsert(ctx context.Context, alert *model.Alert) (bool, error) {
	query := `
		INSERT INTO alerts (
			id, deadline_id, organization_id, user_id, channel, urgency,
			recipient, scheduled_for, status, deadline_title, due_at,
			escalated_from, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (deadline_id, channel, scheduled_for, recipient)
			WHERE status <> 'cancelled'
		DO NOTHING
	`

	created := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			alert.ID,
			alert.DeadlineID,
			alert.OrganizationID,
			alert.UserID,
			alert.Channel,
			alert.Urgency,
			alert.Recipient,
			alert.ScheduledFor,
			model.AlertStatusScheduled,
			alert.DeadlineTitle,
			alert.DueAt,
			alert.EscalatedFrom,
			alert.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		created = true
		details := fmt.Sprintf("%s alert scheduled for %s (%s)", alert.Channel, alert.ScheduledFor.Format(time.RFC3339), alert.Urgency)
		return r.appendAudit(ctx, tx, alert.ID, alert.OrganizationID, model.AuditActionScheduled, details, alert.CreatedAt)
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert alert: %w", err)
	}
	return created, nil
}

func (r *alertRepository) list(ctx context.Context, where string, arg interface{}, p model.Pagination) ([]*model.Alert, int64, error) {
	p = p.Normalize()

	var total int64
	countQuery := `SELECT COUNT(*) FROM alerts WHERE ` + where
	if err := r.GetDB().GetContext(ctx, &total, countQuery, arg); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var alerts []*model.Alert
	if err := r.GetDB().SelectContext(ctx, &alerts, query, arg, p.PageSize, p.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

func (r *alertRepository) ListByDeadline(ctx context.Context, deadlineID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error) {
	return r.list(ctx, "deadline_id = $1", deadlineID, p)
}

func (r *alertRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error) {
	return r.list(ctx, "organization_id = $1", orgID, p)
}

func (r *alertRepository) CancelFutureScheduled(ctx context.Context, deadlineID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE alerts
		SET status = 'cancelled', updated_at = $2
		WHERE deadline_id = $1 AND status = 'scheduled' AND scheduled_for > $2
		RETURNING id, organization_id
	`

	var cancelled int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := tx.QueryContext(ctx, query, deadlineID, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		type row struct {
			id    uuid.UUID
			orgID uuid.UUID
		}
		var ids []row
		for rows.Next() {
			var rec row
			if err := rows.Scan(&rec.id, &rec.orgID); err != nil {
				return err
			}
			ids = append(ids, rec)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, rec := range ids {
			if err := r.appendAudit(ctx, tx, rec.id, rec.orgID, model.AuditActionCancelled, "cancelled by reschedule", now); err != nil {
				return err
			}
		}
		cancelled = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cancel scheduled alerts: %w", err)
	}
	return cancelled, nil
}

// ClaimDue takes a lease on due alerts so concurrent dispatcher passes
// never send the same alert twice. SKIP LOCKED keeps passes from blocking
// each other on the same rows.
func (r *alertRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*model.Alert, error) {
	query := `
		UPDATE alerts
		SET claimed_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM alerts
			WHERE status = 'scheduled'
			  AND scheduled_for <= $1
			  AND (snoozed_until IS NULL OR snoozed_until <= $1)
			  AND (claimed_until IS NULL OR claimed_until < $1)
			ORDER BY scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + alertColumns

	var alerts []*model.Alert
	if err := r.GetDB().SelectContext(ctx, &alerts, query, now, leaseUntil, limit); err != nil {
		return nil, fmt.Errorf("failed to claim due alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE alerts SET claimed_until = NULL WHERE id = $1 AND status = 'scheduled'`
	if _, err := r.GetDB().ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// transition applies a guarded status update and, when the guard matched,
// appends the matching audit entry in the same transaction.
func (r *alertRepository) transition(ctx context.Context, query string, args []interface{}, id uuid.UUID, action, details string, at time.Time) (bool, error) {
	applied := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var orgID uuid.UUID
		err := tx.QueryRowContext(ctx, query, args...).Scan(&orgID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return r.appendAudit(ctx, tx, id, orgID, action, details, at)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply %s transition: %w", action, err)
	}
	return applied, nil
}

func (r *alertRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, retryCount int, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'sent', sent_at = $2, provider_message_id = $3,
		    retry_count = $4, claimed_until = NULL, updated_at = $2
		WHERE id = $1 AND status = 'scheduled'
		RETURNING organization_id
	`
	details := fmt.Sprintf("sent, provider message id %q, %d transient failures", providerMessageID, retryCount)
	return r.transition(ctx, query, []interface{}{id, at, providerMessageID, retryCount}, id, model.AuditActionSent, details, at)
}

func (r *alertRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryCount int, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'failed', last_error = $2, retry_count = $3,
		    claimed_until = NULL, updated_at = $4
		WHERE id = $1 AND status = 'scheduled'
		RETURNING organization_id
	`
	return r.transition(ctx, query, []interface{}{id, lastError, retryCount, at}, id, model.AuditActionFailed, lastError, at)
}

func (r *alertRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'delivered', delivered_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'sent'
		RETURNING organization_id
	`
	return r.transition(ctx, query, []interface{}{id, at}, id, model.AuditActionDelivered, "provider confirmed delivery", at)
}

func (r *alertRepository) MarkDeliveryFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1 AND status IN ('sent', 'delivered')
		RETURNING organization_id
	`
	return r.transition(ctx, query, []interface{}{id, reason, at}, id, model.AuditActionFailed, reason, at)
}

func (r *alertRepository) Acknowledge(ctx context.Context, id uuid.UUID, method model.AckMethod, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET status = 'acknowledged', acknowledged_at = $2, ack_method = $3, updated_at = $2
		WHERE id = $1 AND status IN ('sent', 'delivered')
		RETURNING organization_id
	`
	details := fmt.Sprintf("acknowledged via %s", method)
	return r.transition(ctx, query, []interface{}{id, at, method}, id, model.AuditActionAcknowledged, details, at)
}

func (r *alertRepository) Snooze(ctx context.Context, id uuid.UUID, until, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET snoozed_until = $2, updated_at = $3
		WHERE id = $1 AND status = 'scheduled'
		RETURNING organization_id
	`
	details := fmt.Sprintf("snoozed until %s", until.Format(time.RFC3339))
	return r.transition(ctx, query, []interface{}{id, until, at}, id, model.AuditActionSnoozed, details, at)
}

func (r *alertRepository) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Alert, error) {
	var alert model.Alert
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE provider_message_id = $1 ORDER BY created_at DESC LIMIT 1`
	if err := r.GetDB().GetContext(ctx, &alert, query, providerMessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find alert by provider message id: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) LatestOpenSMS(ctx context.Context, phone string) (*model.Alert, error) {
	var alert model.Alert
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE channel = 'sms' AND recipient = $1 AND status IN ('sent', 'delivered')
		ORDER BY sent_at DESC
		LIMIT 1
	`
	if err := r.GetDB().GetContext(ctx, &alert, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open sms alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) FindEscalatable(ctx context.Context, cutoff, now time.Time, limit int) ([]*model.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE urgency = 'critical'
		  AND escalated_at IS NULL
		  AND escalated_from IS NULL
		  AND (
			status = 'failed'
			OR (status IN ('sent', 'delivered') AND sent_at <= $1)
		  )
		ORDER BY scheduled_for
		LIMIT $2
	`
	var alerts []*model.Alert
	if err := r.GetDB().SelectContext(ctx, &alerts, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to find escalatable alerts: %w", err)
	}
	return alerts, nil
}

func (r *alertRepository) CreateEscalations(ctx context.Context, origin *model.Alert, escalations []*model.Alert, at time.Time) (bool, error) {
	guard := `
		UPDATE alerts SET escalated_at = $2, updated_at = $2
		WHERE id = $1 AND escalated_at IS NULL
	`
	insert := `
		INSERT INTO alerts (
			id, deadline_id, organization_id, user_id, channel, urgency,
			recipient, scheduled_for, status, deadline_title, due_at,
			escalated_from, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (deadline_id, channel, scheduled_for, recipient)
			WHERE status <> 'cancelled'
		DO NOTHING
	`

	applied := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, guard, origin.ID, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		applied = true

		details := fmt.Sprintf("escalated to %d contact(s)", len(escalations))
		if err := r.appendAudit(ctx, tx, origin.ID, origin.OrganizationID, model.AuditActionEscalated, details, at); err != nil {
			return err
		}

		for _, esc := range escalations {
			if _, err := tx.ExecContext(ctx, insert,
				esc.ID,
				esc.DeadlineID,
				esc.OrganizationID,
				esc.UserID,
				esc.Channel,
				esc.Urgency,
				esc.Recipient,
				esc.ScheduledFor,
				model.AlertStatusScheduled,
				esc.DeadlineTitle,
				esc.DueAt,
				esc.EscalatedFrom,
				at,
			); err != nil {
				return err
			}
			sched := fmt.Sprintf("escalation alert for %s, origin %s", esc.Recipient, origin.ID)
			if err := r.appendAudit(ctx, tx, esc.ID, esc.OrganizationID, model.AuditActionScheduled, sched, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create escalations: %w", err)
	}
	return applied, nil
}
