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

type preferenceRepository struct {
	BaseRepository
}

func NewPreferenceRepository(base BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{base}
}

func (r *preferenceRepository) Get(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID) (*model.AlertPreferences, error) {
	query := `SELECT * FROM alert_preferences WHERE organization_id = $1 AND user_id IS NULL`
	args := []interface{}{orgID}
	if userID != nil {
		query = `SELECT * FROM alert_preferences WHERE organization_id = $1 AND user_id = $2`
		args = append(args, *userID)
	}

	var prefs model.AlertPreferences
	if err := r.GetDB().GetContext(ctx, &prefs, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, p *model.AlertPreferences) error {
	query := `
		INSERT INTO alert_preferences (
			id, organization_id, user_id, critical_channels, high_channels,
			medium_channels, early_channels, alert_days, escalation_enabled,
			escalation_contacts, override_email, override_phone, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (organization_id, COALESCE(user_id, '00000000-0000-0000-0000-000000000000'::uuid)) DO UPDATE SET
			critical_channels = EXCLUDED.critical_channels,
			high_channels = EXCLUDED.high_channels,
			medium_channels = EXCLUDED.medium_channels,
			early_channels = EXCLUDED.early_channels,
			alert_days = EXCLUDED.alert_days,
			escalation_enabled = EXCLUDED.escalation_enabled,
			escalation_contacts = EXCLUDED.escalation_contacts,
			override_email = EXCLUDED.override_email,
			override_phone = EXCLUDED.override_phone,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		p.ID,
		p.OrganizationID,
		p.UserID,
		p.CriticalChannels,
		p.HighChannels,
		p.MediumChannels,
		p.EarlyChannels,
		p.AlertDays,
		p.EscalationEnabled,
		p.EscalationContacts,
		p.OverrideEmail,
		p.OverridePhone,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}
