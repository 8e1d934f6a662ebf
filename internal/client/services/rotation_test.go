package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/client/store"
)

func TestRotateKeyReencryptsEverything(t *testing.T) {
	ctx := context.Background()
	svc, st, ks := newTestService(t)

	a, err := svc.Create(ctx, CreateParams{Title: "a", Body: "alpha"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateParams{Title: "b", Body: "beta"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, []string{b}))

	oldID, _, err := ks.ActiveKey()
	require.NoError(t, err)

	require.NoError(t, svc.RotateKey(ctx))
	assert.False(t, ks.RotationInProgress())

	newID, _, err := ks.ActiveKey()
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	// live entry decrypts under the new key; version bumped, dirty set
	got, err := svc.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Body)
	assert.Equal(t, int64(2), got.Version)

	err = st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		// nothing left sealed under the retired key, tombstones included
		n, err := tx.Entries.CountByKeyID(ctx, oldID)
		require.NoError(t, err)
		assert.Zero(t, n)

		row, err := tx.Entries.GetByID(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, newID, row.KeyID)
		assert.True(t, row.Dirty)

		tomb, err := tx.Entries.GetByID(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, newID, tomb.KeyID)
		return nil
	})
	require.NoError(t, err)

	// the retired key is gone from the key file
	_, err = ks.KeyByID(oldID)
	assert.Error(t, err)
}

func TestRotateKeyMigratesShadows(t *testing.T) {
	ctx := context.Background()
	svc, st, ks := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "winner"})
	require.NoError(t, err)

	// plant a conflict shadow sealed under the current key
	oldID, _, err := ks.ActiveKey()
	require.NoError(t, err)
	box, err := ks.BoxForID(oldID)
	require.NoError(t, err)
	blob, err := box.Seal([]byte("loser"))
	require.NoError(t, err)

	shadowID := uuid.NewString()
	err = st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.Shadows.Insert(ctx, &models.Shadow{
			ID:            shadowID,
			EntryID:       id,
			Origin:        models.ShadowOriginRemote,
			Title:         "t",
			BodyFormat:    models.BodyFormatPlain,
			EncryptedBody: blob,
			KeyID:         oldID,
			Version:       1,
			CapturedAt:    time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	require.NoError(t, svc.RotateKey(ctx))

	// the preserved conflict content is still recoverable
	conflicts, err := svc.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "loser", conflicts[0].Body)

	err = st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		sh, err := tx.Shadows.GetByID(ctx, shadowID)
		require.NoError(t, err)
		assert.NotEqual(t, oldID, sh.KeyID)
		return nil
	})
	require.NoError(t, err)
}

func TestRotateKeyResumesInterruptedRotation(t *testing.T) {
	ctx := context.Background()
	svc, _, ks := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "b"})
	require.NoError(t, err)

	// simulate a crash after the key file gained a new active key but
	// before any record was migrated
	newID, oldID, err := ks.BeginRotation()
	require.NoError(t, err)
	require.True(t, ks.RotationInProgress())

	require.NoError(t, svc.RotateKey(ctx))
	assert.False(t, ks.RotationInProgress())

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Body)

	resumedID, _, err := ks.ActiveKey()
	require.NoError(t, err)
	assert.Equal(t, newID, resumedID, "resume must keep the pending key, not mint another")
	_, err = ks.KeyByID(oldID)
	assert.Error(t, err)
}
