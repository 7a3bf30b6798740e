package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
	"github.com/complytrack/alert-engine/pkg/logger"
)

// Service appends audit entries outside of a repository transaction.
// Status transitions write their own entries transactionally; this path
// covers the per-attempt records the dispatcher emits between
// transitions.
type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Record(ctx context.Context, alertID, orgID uuid.UUID, action, details string) {
	entry := &model.AuditLogEntry{
		ID:             uuid.New(),
		AlertID:        alertID,
		OrganizationID: orgID,
		Action:         action,
		Details:        details,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to append audit entry",
			"alert_id", alertID.String(), "action", action)
	}
}

func (s *Service) History(ctx context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error) {
	return s.repo.ListByAlert(ctx, alertID)
}
