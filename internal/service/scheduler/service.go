package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
	"github.com/complytrack/alert-engine/internal/service/preference"
	"github.com/complytrack/alert-engine/internal/urgency"
	"github.com/complytrack/alert-engine/pkg/errors"
	"github.com/complytrack/alert-engine/pkg/logger"
)

const day = 24 * time.Hour

type Service interface {
	// Schedule expands a deadline into its alert instances. Idempotent:
	// re-running for an unchanged deadline creates nothing new.
	Schedule(ctx context.Context, deadline *model.Deadline, now time.Time) (int, error)

	// Reschedule cancels the deadline's future scheduled alerts and
	// expands it again. Sent and in-flight alerts are untouched.
	Reschedule(ctx context.Context, deadline *model.Deadline, now time.Time) (int, error)

	// HandleDeadlineEvent stores the snapshot and applies the scheduling
	// consequence of one upstream trigger.
	HandleDeadlineEvent(ctx context.Context, event *model.DeadlineEvent, now time.Time) error

	// RescheduleScope re-runs scheduling for every open deadline in an
	// (org, user) scope; used when preferences change.
	RescheduleScope(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, now time.Time) error
}

type service struct {
	alerts    repository.AlertRepository
	deadlines repository.DeadlineRepository
	prefs     preference.Service
	logger    *logger.Logger
}

func NewService(alerts repository.AlertRepository, deadlines repository.DeadlineRepository, prefs preference.Service, logger *logger.Logger) Service {
	return &service{alerts: alerts, deadlines: deadlines, prefs: prefs, logger: logger}
}

func (s *service) Schedule(ctx context.Context, deadline *model.Deadline, now time.Time) (int, error) {
	if !deadline.Active() {
		return 0, nil
	}

	prefs, err := s.prefs.Resolve(ctx, deadline.OrganizationID, deadline.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve preferences: %w", err)
	}

	created := 0
	for _, offset := range prefs.AlertDays {
		scheduledFor := deadline.DueAt.Add(-time.Duration(offset) * day)

		// Urgency is frozen from the offset, not from the wall clock.
		tier := urgency.Classify(deadline.DueAt, scheduledFor)

		channels := urgency.ResolveChannels(tier, prefs)
		if len(channels) == 0 {
			// All channels disabled for this tier: skip the whole
			// offset, never create a channel-less alert.
			continue
		}

		for _, channel := range channels {
			recipient, err := resolveRecipient(channel, deadline, prefs)
			if err != nil {
				s.logger.Debug("skipping alert instance",
					"deadline_id", deadline.ID.String(),
					"channel", string(channel),
					"reason", err.Error())
				continue
			}

			alert := &model.Alert{
				ID:             uuid.New(),
				DeadlineID:     deadline.ID,
				OrganizationID: deadline.OrganizationID,
				UserID:         deadline.UserID,
				Channel:        channel,
				Urgency:        string(tier),
				Recipient:      recipient,
				ScheduledFor:   scheduledFor,
				Status:         model.AlertStatusScheduled,
				DeadlineTitle:  deadline.Title,
				DueAt:          deadline.DueAt,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			ok, err := s.alerts.Upsert(ctx, alert)
			if err != nil {
				return created, fmt.Errorf("failed to create alert: %w", err)
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

func (s *service) Reschedule(ctx context.Context, deadline *model.Deadline, now time.Time) (int, error) {
	cancelled, err := s.alerts.CancelFutureScheduled(ctx, deadline.ID, now)
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		s.logger.Info("cancelled scheduled alerts for reschedule",
			"deadline_id", deadline.ID.String(), "count", cancelled)
	}
	if !deadline.Active() {
		return 0, nil
	}
	return s.Schedule(ctx, deadline, now)
}

func (s *service) HandleDeadlineEvent(ctx context.Context, event *model.DeadlineEvent, now time.Time) error {
	d := event.Deadline
	d.UpdatedAt = now
	if err := s.deadlines.Upsert(ctx, &d); err != nil {
		return err
	}

	switch event.Type {
	case model.DeadlineEventCreated:
		_, err := s.Schedule(ctx, &d, now)
		return err
	case model.DeadlineEventUpdated, model.DeadlineEventReopened:
		_, err := s.Reschedule(ctx, &d, now)
		return err
	case model.DeadlineEventCompleted, model.DeadlineEventDeleted:
		_, err := s.alerts.CancelFutureScheduled(ctx, d.ID, now)
		return err
	default:
		return errors.BadRequest(fmt.Sprintf("unknown deadline event type: %s", event.Type), nil)
	}
}

func (s *service) RescheduleScope(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, now time.Time) error {
	deadlines, err := s.deadlines.ListActiveByScope(ctx, orgID, userID)
	if err != nil {
		return err
	}
	for _, d := range deadlines {
		if _, err := s.Reschedule(ctx, d, now); err != nil {
			return err
		}
	}
	return nil
}

func resolveRecipient(channel model.Channel, deadline *model.Deadline, prefs *model.AlertPreferences) (string, error) {
	switch channel {
	case model.ChannelEmail:
		if prefs.OverrideEmail != "" {
			return prefs.OverrideEmail, nil
		}
		if deadline.AssigneeEmail != "" {
			return deadline.AssigneeEmail, nil
		}
		return "", errors.Configuration("no email destination")
	case model.ChannelSMS:
		if prefs.OverridePhone != "" {
			return prefs.OverridePhone, nil
		}
		if deadline.AssigneePhone != "" {
			return deadline.AssigneePhone, nil
		}
		return "", errors.Configuration("no phone destination")
	case model.ChannelInApp:
		if deadline.UserID != nil {
			return deadline.UserID.String(), nil
		}
		return deadline.OrganizationID.String(), nil
	default:
		return "", errors.Configuration(fmt.Sprintf("unsupported channel %q", channel))
	}
}
