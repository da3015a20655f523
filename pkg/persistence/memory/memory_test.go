package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcline/qcline/pkg/log"
	"github.com/qcline/qcline/pkg/models"
	"github.com/qcline/qcline/pkg/persistence"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	store := NewPersistence(log.WithModule("test"))
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store
}

func TestOperatorRepository(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	_, err := store.Operators().ByID(ctx, 100)
	assert.True(t, persistence.IsOperatorNotFound(err))

	operator := &models.Operator{ID: 100, FullName: "Test Operator", Position: "inspector"}
	require.NoError(t, store.Operators().Save(ctx, operator))

	loaded, err := store.Operators().ByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Test Operator", loaded.FullName)

	// Save is an upsert.
	operator.Position = "senior inspector"
	require.NoError(t, store.Operators().Save(ctx, operator))

	loaded, err = store.Operators().ByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "senior inspector", loaded.Position)
}

func TestDraftRepository(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	_, err := store.Drafts().Load(ctx, 100, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))

	draft := &models.Draft{
		OperatorID:    100,
		Process:       "forming",
		SchemaVersion: 1,
		Payload:       []byte(`{"a":1}`),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Drafts().Save(ctx, draft))

	loaded, err := store.Drafts().Load(ctx, 100, "forming")
	require.NoError(t, err)
	assert.Equal(t, draft.Payload, loaded.Payload)

	// One draft per key: saving again overwrites.
	draft.Payload = []byte(`{"a":2}`)
	require.NoError(t, store.Drafts().Save(ctx, draft))

	loaded, err = store.Drafts().Load(ctx, 100, "forming")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":2}`), loaded.Payload)

	// Keys are independent per process.
	_, err = store.Drafts().Load(ctx, 100, "packaging")
	assert.True(t, persistence.IsDraftNotFound(err))

	require.NoError(t, store.Drafts().Delete(ctx, 100, "forming"))

	_, err = store.Drafts().Load(ctx, 100, "forming")
	assert.True(t, persistence.IsDraftNotFound(err))

	// Deleting an absent draft is not an error.
	assert.NoError(t, store.Drafts().Delete(ctx, 100, "forming"))
}

func TestTokenRepository_Take(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	now := time.Now().UTC()
	token := &models.ContinuationToken{
		Token:      "tok-1",
		OperatorID: 100,
		Action:     models.TokenActionContinueUnit,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, store.Tokens().Save(ctx, token))

	taken, err := store.Tokens().Take(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), taken.OperatorID)

	_, err = store.Tokens().Take(ctx, "tok-1")
	assert.True(t, persistence.IsTokenNotFound(err))
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	now := time.Now().UTC()

	for _, token := range []*models.ContinuationToken{
		{Token: "expired", OperatorID: 100, ExpiresAt: now.Add(-time.Minute)},
		{Token: "live", OperatorID: 100, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, store.Tokens().Save(ctx, token))
	}

	reaped, err := store.Tokens().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	_, err = store.Tokens().Get(ctx, "expired")
	assert.True(t, persistence.IsTokenNotFound(err))

	_, err = store.Tokens().Get(ctx, "live")
	assert.NoError(t, err)
}

func TestRecordRepository_LastForProcess(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	_, err := store.Records().LastForProcess(ctx, 100, "forming")
	assert.True(t, persistence.IsRecordNotFound(err))

	now := time.Now().UTC()

	for i, id := range []string{"rec-1", "rec-2"} {
		require.NoError(t, store.Records().Insert(ctx, &models.Record{
			ID:         id,
			OperatorID: 100,
			Process:    "forming",
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, store.Records().Insert(ctx, &models.Record{
		ID:         "other-process",
		OperatorID: 100,
		Process:    "packaging",
		CreatedAt:  now.Add(time.Hour),
	}))

	last, err := store.Records().LastForProcess(ctx, 100, "forming")
	require.NoError(t, err)
	assert.Equal(t, "rec-2", last.ID)
}

func TestUnitSessionRepository_Claim(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	now := time.Now().UTC()
	session := &models.UnitSession{
		ID:         "unit-1",
		OperatorID: 100,
		Process:    "forming",
		ItemCode:   "ITEM-1",
		CreatedAt:  now,
	}

	claimed, err := store.UnitSessions().Claim(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "unit-1", claimed.ID)

	// Re-claiming by the owner returns the existing session.
	again, err := store.UnitSessions().Claim(ctx, &models.UnitSession{
		ID:         "unit-2",
		OperatorID: 100,
		Process:    "forming",
		ItemCode:   "ITEM-1",
		CreatedAt:  now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, "unit-1", again.ID)

	// A different operator is rejected while the session is active.
	_, err = store.UnitSessions().Claim(ctx, &models.UnitSession{
		ID:         "unit-3",
		OperatorID: 200,
		Process:    "forming",
		ItemCode:   "ITEM-1",
		CreatedAt:  now.Add(time.Minute),
	})
	assert.True(t, persistence.IsUnitOwned(err))

	require.NoError(t, store.UnitSessions().Complete(ctx, "unit-1", now.Add(time.Hour)))

	// Completion frees the unit for the next operator.
	_, err = store.UnitSessions().Claim(ctx, &models.UnitSession{
		ID:         "unit-4",
		OperatorID: 200,
		Process:    "forming",
		ItemCode:   "ITEM-1",
		CreatedAt:  now.Add(2 * time.Hour),
	})
	assert.NoError(t, err)
}

func TestUnitSessionRepository_ActiveForOperator(t *testing.T) {
	t.Parallel()

	store := newTestPersistence(t)
	ctx := context.Background()

	_, err := store.UnitSessions().ActiveForOperator(ctx, 100, "forming")
	assert.True(t, persistence.IsUnitSessionNotFound(err))

	now := time.Now().UTC()

	for i, id := range []string{"unit-1", "unit-2"} {
		_, err := store.UnitSessions().Claim(ctx, &models.UnitSession{
			ID:         id,
			OperatorID: 100,
			Process:    "forming",
			ItemCode:   "ITEM-" + id,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	active, err := store.UnitSessions().ActiveForOperator(ctx, 100, "forming")
	require.NoError(t, err)
	assert.Equal(t, "unit-2", active.ID)
}
