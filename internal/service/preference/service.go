package preference

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

type Service interface {
	// Resolve returns the one preference record in effect for an
	// (org, user) pair: the user-specific record when present, the
	// organization default otherwise, built-in defaults as a last resort.
	Resolve(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error)

	Get(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error)
	Patch(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, patch *model.PreferencesPatch) (*model.AlertPreferences, error)
}

type service struct {
	repo  repository.PreferenceRepository
	cache *gocache.Cache
}

func NewService(repo repository.PreferenceRepository) Service {
	return &service{
		repo:  repo,
		cache: gocache.New(cacheTTL, cacheCleanup),
	}
}

func cacheKey(orgID uuid.UUID, userID *uuid.UUID) string {
	if userID == nil {
		return orgID.String()
	}
	return orgID.String() + ":" + userID.String()
}

func (s *service) Resolve(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error) {
	key := cacheKey(orgID, userID)
	if v, ok := s.cache.Get(key); ok {
		return v.(*model.AlertPreferences), nil
	}

	if userID != nil {
		prefs, err := s.repo.Get(ctx, orgID, userID)
		if err != nil {
			return nil, err
		}
		if prefs != nil {
			s.cache.Set(key, prefs, gocache.DefaultExpiration)
			return prefs, nil
		}
	}

	prefs, err := s.repo.Get(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = model.DefaultPreferences(orgID)
	}
	s.cache.Set(key, prefs, gocache.DefaultExpiration)
	return prefs, nil
}

func (s *service) Get(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error) {
	return s.Resolve(ctx, orgID, userID)
}

func (s *service) Patch(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, patch *model.PreferencesPatch) (*model.AlertPreferences, error) {
	current, err := s.repo.Get(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = model.DefaultPreferences(orgID)
		current.UserID = userID
	}

	applyPatch(current, patch)
	current.UpdatedAt = time.Now().UTC()
	if current.CreatedAt.IsZero() {
		current.CreatedAt = current.UpdatedAt
	}

	if err := s.repo.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}

	// Invalidate both the exact scope and the org fallback; user lookups
	// may have cached the org record.
	s.cache.Flush()
	return current, nil
}

func applyPatch(p *model.AlertPreferences, patch *model.PreferencesPatch) {
	if patch.CriticalChannels != nil {
		p.CriticalChannels = *patch.CriticalChannels
	}
	if patch.HighChannels != nil {
		p.HighChannels = *patch.HighChannels
	}
	if patch.MediumChannels != nil {
		p.MediumChannels = *patch.MediumChannels
	}
	if patch.EarlyChannels != nil {
		p.EarlyChannels = *patch.EarlyChannels
	}
	if patch.AlertDays != nil {
		p.AlertDays = *patch.AlertDays
	}
	if patch.EscalationEnabled != nil {
		p.EscalationEnabled = *patch.EscalationEnabled
	}
	if patch.EscalationContacts != nil {
		p.EscalationContacts = *patch.EscalationContacts
	}
	if patch.OverrideEmail != nil {
		p.OverrideEmail = *patch.OverrideEmail
	}
	if patch.OverridePhone != nil {
		p.OverridePhone = *patch.OverridePhone
	}
}
