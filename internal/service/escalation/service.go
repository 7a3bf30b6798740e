package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
	"github.com/complytrack/alert-engine/internal/service/preference"
	"github.com/complytrack/alert-engine/internal/urgency"
	"github.com/complytrack/alert-engine/pkg/logger"
	"github.com/complytrack/alert-engine/pkg/metrics"
)

type Config struct {
	GraceWindow time.Duration
	BatchSize   int
}

func (c Config) withDefaults() Config {
	if c.GraceWindow <= 0 {
		c.GraceWindow = 4 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// Service creates secondary alerts for escalation contacts when a
// critical alert fails outright or goes unacknowledged past the grace
// window. Escalation is deliberately channel-restricted to email, and
// fires at most once per originating alert.
type Service struct {
	cfg     Config
	repo    repository.AlertRepository
	prefs   preference.Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(cfg Config, repo repository.AlertRepository, prefs preference.Service, logger *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{cfg: cfg.withDefaults(), repo: repo, prefs: prefs, logger: logger, metrics: m}
}

// RunPass scans for escalatable alerts and fans each out to its contacts.
func (s *Service) RunPass(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	candidates, err := s.repo.FindEscalatable(ctx, now.Add(-s.cfg.GraceWindow), now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find escalatable alerts: %w", err)
	}

	fired := 0
	for _, origin := range candidates {
		ok, err := s.Escalate(ctx, origin, now)
		if err != nil {
			s.logger.Error(err, "escalation failed", "alert_id", origin.ID.String())
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, nil
}

// Escalate creates the secondary alerts for one originating alert.
// Returns false when escalation is disabled, there are no contacts, or
// another pass already escalated it.
func (s *Service) Escalate(ctx context.Context, origin *model.Alert, now time.Time) (bool, error) {
	prefs, err := s.prefs.Resolve(ctx, origin.OrganizationID, origin.UserID)
	if err != nil {
		return false, err
	}
	// Disabled escalation is a guarded no-op, not an error.
	if !prefs.EscalationEnabled || len(prefs.EscalationContacts) == 0 {
		return false, nil
	}

	escalations := make([]*model.Alert, 0, len(prefs.EscalationContacts))
	for _, contact := range prefs.EscalationContacts {
		escalations = append(escalations, &model.Alert{
			ID:             uuid.New(),
			DeadlineID:     origin.DeadlineID,
			OrganizationID: origin.OrganizationID,
			Channel:        model.ChannelEmail,
			Urgency:        string(urgency.TierCritical),
			Recipient:      contact,
			ScheduledFor:   now,
			Status:         model.AlertStatusScheduled,
			DeadlineTitle:  origin.DeadlineTitle,
			DueAt:          origin.DueAt,
			EscalatedFrom:  &origin.ID,
		})
	}

	applied, err := s.repo.CreateEscalations(ctx, origin, escalations, now)
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.EscalationsFired.Inc()
		s.logger.Info("escalated alert",
			"alert_id", origin.ID.String(),
			"contacts", len(escalations))
	}
	return applied, nil
}
