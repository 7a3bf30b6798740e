package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (id, alert_id, organization_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.AlertID,
		entry.OrganizationID,
		entry.Action,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error) {
	query := `SELECT * FROM audit_log WHERE alert_id = $1 ORDER BY created_at`
	var entries []*model.AuditLogEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, alertID); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
