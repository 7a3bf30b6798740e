// Package memory implements the repository interfaces on in-process maps.
// It mirrors the guard semantics of the postgres implementation and backs
// unit tests and local development without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
)

type Store struct {
	mu        sync.Mutex
	alerts    map[uuid.UUID]*model.Alert
	deadlines map[uuid.UUID]*model.Deadline
	prefs     map[string]*model.AlertPreferences
	audit     []*model.AuditLogEntry
}

func NewStore() *Store {
	return &Store{
		alerts:    make(map[uuid.UUID]*model.Alert),
		deadlines: make(map[uuid.UUID]*model.Deadline),
		prefs:     make(map[string]*model.AlertPreferences),
	}
}

func (s *Store) Alerts() repository.AlertRepository           { return &alertStore{s} }
func (s *Store) Deadlines() repository.DeadlineRepository     { return &deadlineStore{s} }
func (s *Store) Preferences() repository.PreferenceRepository { return &preferenceStore{s} }
func (s *Store) Audit() repository.AuditRepository            { return &auditStore{s} }

func (s *Store) appendAudit(alertID, orgID uuid.UUID, action, details string, at time.Time) {
	s.audit = append(s.audit, &model.AuditLogEntry{
		ID:             uuid.New(),
		AlertID:        alertID,
		OrganizationID: orgID,
		Action:         action,
		Details:        details,
		CreatedAt:      at,
	})
}

func dedupeKey(a *model.Alert) string {
	return fmt.Sprintf("%s|%s|%d|%s", a.DeadlineID, a.Channel, a.ScheduledFor.UnixNano(), a.Recipient)
}

func copyAlert(a *model.Alert) *model.Alert {
	c := *a
	return &c
}

type alertStore struct{ s *Store }

func (r *alertStore) Get(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, nil
	}
	return copyAlert(a), nil
}

func (r *alertStore) Upsert(_ context.Context, alert *model.Alert) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := dedupeKey(alert)
	for _, existing := range r.s.alerts {
		if existing.Status != model.AlertStatusCancelled && dedupeKey(existing) == key {
			return false, nil
		}
	}

	stored := copyAlert(alert)
	stored.Status = model.AlertStatusScheduled
	r.s.alerts[stored.ID] = stored
	details := fmt.Sprintf("%s alert scheduled for %s (%s)", alert.Channel, alert.ScheduledFor.Format(time.RFC3339), alert.Urgency)
	r.s.appendAudit(stored.ID, stored.OrganizationID, model.AuditActionScheduled, details, alert.CreatedAt)
	return true, nil
}

func (r *alertStore) list(match func(*model.Alert) bool, p model.Pagination) ([]*model.Alert, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p = p.Normalize()
	var all []*model.Alert
	for _, a := range r.s.alerts {
		if match(a) {
			all = append(all, copyAlert(a))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := p.Offset()
	if start > len(all) {
		return nil, total, nil
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *alertStore) ListByDeadline(_ context.Context, deadlineID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error) {
	return r.list(func(a *model.Alert) bool { return a.DeadlineID == deadlineID }, p)
}

func (r *alertStore) ListByOrganization(_ context.Context, orgID uuid.UUID, p model.Pagination) ([]*model.Alert, int64, error) {
	return r.list(func(a *model.Alert) bool { return a.OrganizationID == orgID }, p)
}

func (r *alertStore) CancelFutureScheduled(_ context.Context, deadlineID uuid.UUID, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var cancelled int64
	for _, a := range r.s.alerts {
		if a.DeadlineID == deadlineID && a.Status == model.AlertStatusScheduled && a.ScheduledFor.After(now) {
			a.Status = model.AlertStatusCancelled
			a.UpdatedAt = now
			r.s.appendAudit(a.ID, a.OrganizationID, model.AuditActionCancelled, "cancelled by reschedule", now)
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *alertStore) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var due []*model.Alert
	for _, a := range r.s.alerts {
		if a.Status != model.AlertStatusScheduled || a.ScheduledFor.After(now) {
			continue
		}
		if a.SnoozedUntil != nil && a.SnoozedUntil.After(now) {
			continue
		}
		if a.ClaimedUntil != nil && !a.ClaimedUntil.Before(now) {
			continue
		}
		due = append(due, a)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.Alert, 0, len(due))
	for _, a := range due {
		lease := leaseUntil
		a.ClaimedUntil = &lease
		a.UpdatedAt = now
		out = append(out, copyAlert(a))
	}
	return out, nil
}

func (r *alertStore) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.alerts[id]; ok && a.Status == model.AlertStatusScheduled {
		a.ClaimedUntil = nil
	}
	return nil
}

// transition applies fn when the current status matches one of from, and
// appends the audit entry with it under the same lock.
func (r *alertStore) transition(id uuid.UUID, from []model.AlertStatus, action, details string, at time.Time, fn func(*model.Alert)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.alerts[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range from {
		if a.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	fn(a)
	a.UpdatedAt = at
	r.s.appendAudit(a.ID, a.OrganizationID, action, details, at)
	return true, nil
}

func (r *alertStore) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string, retryCount int, at time.Time) (bool, error) {
	details := fmt.Sprintf("sent, provider message id %q, %d transient failures", providerMessageID, retryCount)
	return r.transition(id, []model.AlertStatus{model.AlertStatusScheduled}, model.AuditActionSent, details, at, func(a *model.Alert) {
		a.Status = model.AlertStatusSent
		sentAt := at
		a.SentAt = &sentAt
		a.ProviderMessageID = providerMessageID
		a.RetryCount = retryCount
		a.ClaimedUntil = nil
	})
}

func (r *alertStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string, retryCount int, at time.Time) (bool, error) {
	return r.transition(id, []model.AlertStatus{model.AlertStatusScheduled}, model.AuditActionFailed, lastError, at, func(a *model.Alert) {
		a.Status = model.AlertStatusFailed
		a.LastError = lastError
		a.RetryCount = retryCount
		a.ClaimedUntil = nil
	})
}

func (r *alertStore) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(id, []model.AlertStatus{model.AlertStatusSent}, model.AuditActionDelivered, "provider confirmed delivery", at, func(a *model.Alert) {
		a.Status = model.AlertStatusDelivered
		deliveredAt := at
		a.DeliveredAt = &deliveredAt
	})
}

func (r *alertStore) MarkDeliveryFailed(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(id, []model.AlertStatus{model.AlertStatusSent, model.AlertStatusDelivered}, model.AuditActionFailed, reason, at, func(a *model.Alert) {
		a.Status = model.AlertStatusFailed
		a.LastError = reason
	})
}

func (r *alertStore) Acknowledge(_ context.Context, id uuid.UUID, method model.AckMethod, at time.Time) (bool, error) {
	details := fmt.Sprintf("acknowledged via %s", method)
	return r.transition(id, []model.AlertStatus{model.AlertStatusSent, model.AlertStatusDelivered}, model.AuditActionAcknowledged, details, at, func(a *model.Alert) {
		a.Status = model.AlertStatusAcknowledged
		ackedAt := at
		a.AcknowledgedAt = &ackedAt
		m := method
		a.AckMethod = &m
	})
}

func (r *alertStore) Snooze(_ context.Context, id uuid.UUID, until, at time.Time) (bool, error) {
	details := fmt.Sprintf("snoozed until %s", until.Format(time.RFC3339))
	return r.transition(id, []model.AlertStatus{model.AlertStatusScheduled}, model.AuditActionSnoozed, details, at, func(a *model.Alert) {
		u := until
		a.SnoozedUntil = &u
	})
}

func (r *alertStore) FindByProviderMessageID(_ context.Context, providerMessageID string) (*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.alerts {
		if a.ProviderMessageID == providerMessageID && providerMessageID != "" {
			return copyAlert(a), nil
		}
	}
	return nil, nil
}

func (r *alertStore) LatestOpenSMS(_ context.Context, phone string) (*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *model.Alert
	for _, a := range r.s.alerts {
		if a.Channel != model.ChannelSMS || a.Recipient != phone {
			continue
		}
		if a.Status != model.AlertStatusSent && a.Status != model.AlertStatusDelivered {
			continue
		}
		if latest == nil || (a.SentAt != nil && latest.SentAt != nil && a.SentAt.After(*latest.SentAt)) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyAlert(latest), nil
}

func (r *alertStore) FindEscalatable(_ context.Context, cutoff, _ time.Time, limit int) ([]*model.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Alert
	for _, a := range r.s.alerts {
		if a.Urgency != "critical" || a.EscalatedAt != nil || a.EscalatedFrom != nil {
			continue
		}
		failed := a.Status == model.AlertStatusFailed
		stale := (a.Status == model.AlertStatusSent || a.Status == model.AlertStatusDelivered) &&
			a.SentAt != nil && !a.SentAt.After(cutoff)
		if failed || stale {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *alertStore) CreateEscalations(_ context.Context, origin *model.Alert, escalations []*model.Alert, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.alerts[origin.ID]
	if !ok || stored.EscalatedAt != nil {
		return false, nil
	}
	escalatedAt := at
	stored.EscalatedAt = &escalatedAt
	stored.UpdatedAt = at
	r.s.appendAudit(stored.ID, stored.OrganizationID, model.AuditActionEscalated,
		fmt.Sprintf("escalated to %d contact(s)", len(escalations)), at)

	for _, esc := range escalations {
		key := dedupeKey(esc)
		exists := false
		for _, existing := range r.s.alerts {
			if existing.Status != model.AlertStatusCancelled && dedupeKey(existing) == key {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		child := copyAlert(esc)
		child.Status = model.AlertStatusScheduled
		child.CreatedAt = at
		child.UpdatedAt = at
		r.s.alerts[child.ID] = child
		r.s.appendAudit(child.ID, child.OrganizationID, model.AuditActionScheduled,
			fmt.Sprintf("escalation alert for %s, origin %s", child.Recipient, origin.ID), at)
	}
	return true, nil
}

type deadlineStore struct{ s *Store }

func (r *deadlineStore) Upsert(_ context.Context, d *model.Deadline) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *d
	r.s.deadlines[d.ID] = &c
	return nil
}

func (r *deadlineStore) Get(_ context.Context, id uuid.UUID) (*model.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deadlines[id]
	if !ok {
		return nil, nil
	}
	c := *d
	return &c, nil
}

func (r *deadlineStore) ListActive(_ context.Context, limit, offset int) ([]*model.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var all []*model.Deadline
	for _, d := range r.s.deadlines {
		if d.Active() {
			c := *d
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DueAt.Before(all[j].DueAt) })
	if offset > len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *deadlineStore) ListActiveByScope(_ context.Context, orgID uuid.UUID, userID *uuid.UUID) ([]*model.Deadline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Deadline
	for _, d := range r.s.deadlines {
		if !d.Active() || d.OrganizationID != orgID {
			continue
		}
		if userID != nil && (d.UserID == nil || *d.UserID != *userID) {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

type preferenceStore struct{ s *Store }

func prefKey(orgID uuid.UUID, userID *uuid.UUID) string {
	if userID == nil {
		return orgID.String()
	}
	return orgID.String() + "|" + userID.String()
}

func (r *preferenceStore) Get(_ context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.prefs[prefKey(orgID, userID)]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *preferenceStore) Upsert(_ context.Context, p *model.AlertPreferences) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	r.s.prefs[prefKey(p.OrganizationID, p.UserID)] = &c
	return nil
}

type auditStore struct{ s *Store }

func (r *auditStore) Append(_ context.Context, entry *model.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *entry
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.audit = append(r.s.audit, &c)
	return nil
}

func (r *auditStore) ListByAlert(_ context.Context, alertID uuid.UUID) ([]*model.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.AuditLogEntry
	for _, e := range r.s.audit {
		if e.AlertID == alertID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
