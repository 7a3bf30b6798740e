package preference

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/repository/memory"
)

func TestResolveFallsBackToDefaults(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Preferences())
	orgID := uuid.New()

	prefs, err := svc.Resolve(context.Background(), orgID, nil)
	require.NoError(t, err)
	assert.Equal(t, orgID, prefs.OrganizationID)
	assert.Equal(t, pq.Int64Array{30, 7, 1, 0}, prefs.AlertDays)
	assert.False(t, prefs.EscalationEnabled)
}

func TestResolveUserRecordOverridesOrg(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Preferences())
	ctx := context.Background()
	orgID := uuid.New()
	userID := uuid.New()

	orgPrefs := model.DefaultPreferences(orgID)
	orgPrefs.OverrideEmail = "org@example.com"
	require.NoError(t, store.Preferences().Upsert(ctx, orgPrefs))

	userPrefs := model.DefaultPreferences(orgID)
	userPrefs.ID = uuid.New()
	userPrefs.UserID = &userID
	userPrefs.OverrideEmail = "user@example.com"
	require.NoError(t, store.Preferences().Upsert(ctx, userPrefs))

	resolved, err := svc.Resolve(ctx, orgID, &userID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", resolved.OverrideEmail)

	// A different user without a record falls through to the org default.
	otherUser := uuid.New()
	resolved, err = svc.Resolve(ctx, orgID, &otherUser)
	require.NoError(t, err)
	assert.Equal(t, "org@example.com", resolved.OverrideEmail)
}

func TestPatchAppliesOnlyProvidedFields(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Preferences())
	ctx := context.Background()
	orgID := uuid.New()

	enabled := true
	contacts := []string{"manager@example.com"}
	days := []int64{14, 3, 0}
	patched, err := svc.Patch(ctx, orgID, nil, &model.PreferencesPatch{
		EscalationEnabled:  &enabled,
		EscalationContacts: &contacts,
		AlertDays:          &days,
	})
	require.NoError(t, err)

	assert.True(t, patched.EscalationEnabled)
	assert.Equal(t, pq.StringArray{"manager@example.com"}, patched.EscalationContacts)
	assert.Equal(t, pq.Int64Array{14, 3, 0}, patched.AlertDays)
	// Untouched fields keep their defaults.
	assert.Equal(t, pq.StringArray{"email", "sms", "in_app"}, patched.CriticalChannels)

	// Subsequent resolves observe the patch, not a stale cache entry.
	resolved, err := svc.Resolve(ctx, orgID, nil)
	require.NoError(t, err)
	assert.Equal(t, pq.Int64Array{14, 3, 0}, resolved.AlertDays)
}

func TestPatchInvalidatesCache(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Preferences())
	ctx := context.Background()
	orgID := uuid.New()

	// Prime the cache with the defaults.
	first, err := svc.Resolve(ctx, orgID, nil)
	require.NoError(t, err)
	require.False(t, first.EscalationEnabled)

	enabled := true
	_, err = svc.Patch(ctx, orgID, nil, &model.PreferencesPatch{EscalationEnabled: &enabled})
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, orgID, nil)
	require.NoError(t, err)
	assert.True(t, resolved.EscalationEnabled)
}
