package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
	"github.com/complytrack/alert-engine/internal/urgency"
	"github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

// Service owns the alert delivery state machine. Transitions arrive from
// the dispatcher (sent/failed), from provider webhooks (delivered/failed)
// and from acknowledgments; each is a guarded conditional update, so a
// duplicate or out-of-order event lands as ErrDuplicateEvent and nothing
// else.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*model.AlertView, error)
	ListByDeadline(ctx context.Context, deadlineID uuid.UUID, p model.Pagination) ([]*model.AlertView, int64, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, p model.Pagination) ([]*model.AlertView, int64, error)
	History(ctx context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error)

	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, retryCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryCount int) error
	HandleDelivered(ctx context.Context, id uuid.UUID) error
	HandleDeliveryFailure(ctx context.Context, id uuid.UUID, reason string) error
	Acknowledge(ctx context.Context, id uuid.UUID, method model.AckMethod) error
	Snooze(ctx context.Context, id uuid.UUID, until time.Time) error

	// HandleProviderMessageEvent resolves an SMS provider event by
	// provider message id.
	HandleProviderMessageEvent(ctx context.Context, providerMessageID, status string) error

	// HandleInboundSMS acknowledges the sender's most recent open SMS
	// alert when the body is an acknowledgment keyword.
	HandleInboundSMS(ctx context.Context, fromPhone, body string) error
}

type service struct {
	repo    repository.AlertRepository
	audit   repository.AuditRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.AlertRepository, audit repository.AuditRepository, logger *logger.Logger, m *metrics.Metrics) Service {
	return &service{repo: repo, audit: audit, logger: logger, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) view(a *model.Alert) *model.AlertView {
	return &model.AlertView{
		Alert:       *a,
		LiveUrgency: string(urgency.Classify(a.DueAt, s.now())),
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.AlertView, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.NotFound("alert", nil)
	}
	return s.view(a), nil
}

func (s *service) list(alerts []*model.Alert, total int64, err error) ([]*model.AlertView, int64, error) {
	if err != nil {
		return nil, 0, err
	}
	views := make([]*model.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, s.view(a))
	}
	return views, total, nil
}

func (s *service) ListByDeadline(ctx context.Context, deadlineID uuid.UUID, p model.Pagination) ([]*model.AlertView, int64, error) {
	alerts, total, err := s.repo.ListByDeadline(ctx, deadlineID, p)
	return s.list(alerts, total, err)
}

func (s *service) ListByOrganization(ctx context.Context, orgID uuid.UUID, p model.Pagination) ([]*model.AlertView, int64, error) {
	alerts, total, err := s.repo.ListByOrganization(ctx, orgID, p)
	return s.list(alerts, total, err)
}

func (s *service) History(ctx context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error) {
	return s.audit.ListByAlert(ctx, alertID)
}

// apply funnels every transition through the same duplicate-absorbing
// path.
func (s *service) apply(action string, applied bool, err error) error {
	if err != nil {
		return err
	}
	if !applied {
		s.metrics.DuplicateEvents.Inc()
		return errors.ErrDuplicateEvent
	}
	s.metrics.Transitions.WithLabelValues(action).Inc()
	return nil
}

func (s *service) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, retryCount int) error {
	applied, err := s.repo.MarkSent(ctx, id, providerMessageID, retryCount, s.now())
	return s.apply(model.AuditActionSent, applied, err)
}

func (s *service) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, retryCount int) error {
	applied, err := s.repo.MarkFailed(ctx, id, lastError, retryCount, s.now())
	return s.apply(model.AuditActionFailed, applied, err)
}

func (s *service) HandleDelivered(ctx context.Context, id uuid.UUID) error {
	applied, err := s.repo.MarkDelivered(ctx, id, s.now())
	return s.apply(model.AuditActionDelivered, applied, err)
}

func (s *service) HandleDeliveryFailure(ctx context.Context, id uuid.UUID, reason string) error {
	applied, err := s.repo.MarkDeliveryFailed(ctx, id, reason, s.now())
	return s.apply(model.AuditActionFailed, applied, err)
}

func (s *service) Acknowledge(ctx context.Context, id uuid.UUID, method model.AckMethod) error {
	applied, err := s.repo.Acknowledge(ctx, id, method, s.now())
	return s.apply(model.AuditActionAcknowledged, applied, err)
}

func (s *service) Snooze(ctx context.Context, id uuid.UUID, until time.Time) error {
	if !until.After(s.now()) {
		return errors.BadRequest("snooze time must be in the future", nil)
	}
	applied, err := s.repo.Snooze(ctx, id, until, s.now())
	if err != nil {
		return err
	}
	if !applied {
		// Snoozing is only legal while the alert is still scheduled.
		return errors.Conflict("alert is no longer scheduled", nil)
	}
	s.metrics.Transitions.WithLabelValues(model.AuditActionSnoozed).Inc()
	return nil
}

func (s *service) HandleProviderMessageEvent(ctx context.Context, providerMessageID, status string) error {
	a, err := s.repo.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return err
	}
	if a == nil {
		return errors.NotFound("alert for provider message", nil)
	}

	switch status {
	case "delivered":
		return s.HandleDelivered(ctx, a.ID)
	case "failed", "undelivered":
		return s.HandleDeliveryFailure(ctx, a.ID, fmt.Sprintf("provider reported %s", status))
	default:
		return errors.BadRequest(fmt.Sprintf("unknown provider status %q", status), nil)
	}
}

// IsAckKeyword reports whether an inbound SMS body acknowledges an alert.
func IsAckKeyword(body string) bool {
	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "DONE", "ACK":
		return true
	}
	return false
}

func (s *service) HandleInboundSMS(ctx context.Context, fromPhone, body string) error {
	if !IsAckKeyword(body) {
		s.logger.Debug("ignoring inbound sms without ack keyword", "from", fromPhone)
		return nil
	}

	a, err := s.repo.LatestOpenSMS(ctx, fromPhone)
	if err != nil {
		return err
	}
	if a == nil {
		s.logger.Debug("no open sms alert for inbound ack", "from", fromPhone)
		return nil
	}
	return s.Acknowledge(ctx, a.ID, model.AckMethodSMSReply)
}
