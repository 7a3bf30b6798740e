package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
)

type deadlineRepository struct {
	BaseRepository
}

func NewDeadlineRepository(base BaseRepository) repository.DeadlineRepository {
	return &deadlineRepository{base}
}

func (r *deadlineRepository) Upsert(ctx context.Context, d *model.Deadline) error {
	query := `
		INSERT INTO deadlines (
			id, organization_id, user_id, title, due_at, recurrence_type,
			recurrence_interval_days, recurrence_basis, assignee_email,
			assignee_phone, completed_at, deleted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			title = EXCLUDED.title,
			due_at = EXCLUDED.due_at,
			recurrence_type = EXCLUDED.recurrence_type,
			recurrence_interval_days = EXCLUDED.recurrence_interval_days,
			recurrence_basis = EXCLUDED.recurrence_basis,
			assignee_email = EXCLUDED.assignee_email,
			assignee_phone = EXCLUDED.assignee_phone,
			completed_at = EXCLUDED.completed_at,
			deleted_at = EXCLUDED.deleted_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		d.ID,
		d.OrganizationID,
		d.UserID,
		d.Title,
		d.DueAt,
		d.RecurrenceType,
		d.RecurrenceIntervalDays,
		d.RecurrenceBasis,
		d.AssigneeEmail,
		d.AssigneePhone,
		d.CompletedAt,
		d.DeletedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deadline: %w", err)
	}
	return nil
}

func (r *deadlineRepository) Get(ctx context.Context, id uuid.UUID) (*model.Deadline, error) {
	var d model.Deadline
	query := `SELECT * FROM deadlines WHERE id = $1`
	if err := r.GetDB().GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deadline: %w", err)
	}
	return &d, nil
}

func (r *deadlineRepository) ListActive(ctx context.Context, limit, offset int) ([]*model.Deadline, error) {
	query := `
		SELECT * FROM deadlines
		WHERE completed_at IS NULL AND deleted_at IS NULL
		ORDER BY due_at
		LIMIT $1 OFFSET $2
	`
	var deadlines []*model.Deadline
	if err := r.GetDB().SelectContext(ctx, &deadlines, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list active deadlines: %w", err)
	}
	return deadlines, nil
}

func (r *deadlineRepository) ListActiveByScope(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) ([]*model.Deadline, error) {
	query := `
		SELECT * FROM deadlines
		WHERE organization_id = $1 AND completed_at IS NULL AND deleted_at IS NULL
	`
	args := []interface{}{orgID}
	if userID != nil {
		query += ` AND user_id = $2`
		args = append(args, *userID)
	}
	query += ` ORDER BY due_at`

	var deadlines []*model.Deadline
	if err := r.GetDB().SelectContext(ctx, &deadlines, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deadlines by scope: %w", err)
	}
	return deadlines, nil
}
