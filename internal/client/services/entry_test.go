package services

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlog/quietlog/internal/client/keystore"
	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
)

func newTestService(t *testing.T) (*EntryService, *store.Store, *keystore.KeyStore) {
	t.Helper()
	ctx := context.Background()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	st, err := store.Open(ctx, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ks := keystore.New(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, ks.Unlock([]byte("test-passphrase")))

	return NewEntryService(st, ks, log), st, ks
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	sentiment := 0.4
	id, err := svc.Create(ctx, CreateParams{
		Title:     "Morning pages",
		Body:      "Slept well, feeling optimistic.",
		Tags:      []string{"mood", "Sleep", "sleep"},
		Sentiment: &sentiment,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Morning pages", got.Title)
	assert.Equal(t, "Slept well, feeling optimistic.", got.Body)
	assert.Equal(t, models.BodyFormatPlain, got.BodyFormat)
	assert.Equal(t, []string{"mood", "Sleep"}, got.Tags)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.Sentiment)
	assert.InDelta(t, 0.4, *got.Sentiment, 1e-9)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	tests := []struct {
		name string
		p    CreateParams
	}{
		{"blank body", CreateParams{Title: "t", Body: "   \n\t "}},
		{"title too long", CreateParams{Title: strings.Repeat("x", MaxTitleChars+1), Body: "b"}},
		{"body too long", CreateParams{Title: "t", Body: strings.Repeat("y", MaxBodyChars+1)}},
		{"bad format", CreateParams{Title: "t", Body: "b", Format: "rtf"}},
		{"sentiment out of range", CreateParams{Title: "t", Body: "b", Sentiment: ptr(1.5)}},
		{"tag too long", CreateParams{Title: "t", Body: "b", Tags: []string{strings.Repeat("x", MaxTagChars+1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.p)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestCreateAtLimitsAccepted(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	// rune counts, not bytes: multibyte characters at the exact limit pass
	_, err := svc.Create(ctx, CreateParams{
		Title: strings.Repeat("ж", MaxTitleChars),
		Body:  strings.Repeat("ж", MaxBodyChars),
	})
	require.NoError(t, err)
}

func TestTagLimitMatchesWireContract(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	// a tag at the limit persists and the stored row is valid on the wire
	id, err := svc.Create(ctx, CreateParams{
		Title: "t", Body: "b",
		Tags: []string{strings.Repeat("x", MaxTagChars)},
	})
	require.NoError(t, err)

	err = st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		e, err := tx.Entries.GetByID(ctx, id)
		require.NoError(t, err)
		wire := e.ToWire()
		return wire.Validate()
	})
	require.NoError(t, err)

	// one character past it is rejected before anything is stored, so a
	// push batch can never carry a tag the server refuses
	err = svc.Update(ctx, id, UpdateParams{Tags: []string{strings.Repeat("x", MaxTagChars+1)}})
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("x", MaxTagChars)}, got.Tags)
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateBumpsVersionByOne(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "first"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Update(ctx, id, UpdateParams{Body: ptr("edit " + strings.Repeat("x", i+1))}))
	}

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, "edit xxx", got.Body)
}

func TestUpdateMonotonicUpdatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	// freeze the clock so wall time cannot move between edits
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, id, UpdateParams{Body: ptr("b2")}))
	first, err := svc.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, id, UpdateParams{Body: ptr("b3")}))
	second, err := svc.Get(ctx, id)
	require.NoError(t, err)

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt),
		"updated_at must advance even under a frozen clock")
}

func TestLockedEntryRejectsEdits(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.ToggleLock(ctx, id))

	err = svc.Update(ctx, id, UpdateParams{Body: ptr("nope")})
	assert.ErrorIs(t, err, common.ErrEntryLocked)

	// reads stay allowed while locked
	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, "b", got.Body)

	// unlocking restores mutability; the lock flip itself did not bump version
	require.NoError(t, svc.ToggleLock(ctx, id))
	require.NoError(t, svc.Update(ctx, id, UpdateParams{Body: ptr("after unlock")}))

	got, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "after unlock", got.Body)
	assert.Equal(t, int64(2), got.Version)
}

func TestDeleteBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a, err := svc.Create(ctx, CreateParams{Title: "a", Body: "b"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateParams{Title: "b", Body: "b"})
	require.NoError(t, err)

	err = svc.Delete(ctx, []string{a, "no-such-id", b})
	assert.ErrorIs(t, err, common.ErrNotFound)

	// neither survivor was tombstoned
	_, err = svc.Get(ctx, a)
	require.NoError(t, err)
	_, err = svc.Get(ctx, b)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, []string{a, b}))
	_, err = svc.Get(ctx, a)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteReleasesTagRefs(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	a, err := svc.Create(ctx, CreateParams{Title: "a", Body: "b", Tags: []string{"shared", "solo"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Title: "b", Body: "b", Tags: []string{"shared"}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, []string{a}))

	err = st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		all, err := tx.Tags.All(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(all))
		for _, tag := range all {
			names = append(names, tag.Name)
		}
		// "solo" lost its last reference and is gone; "shared" survives
		assert.Equal(t, []string{"shared"}, names)
		return nil
	})
	require.NoError(t, err)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Create(ctx, CreateParams{Title: "Grocery run", Body: "milk and eggs", Tags: []string{"errands"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Title: "Trip notes", Body: "the grocery store in Lisbon", Tags: []string{"travel"}})
	require.NoError(t, err)

	// title-only search
	items, err := svc.List(ctx, ListFilter{TextContains: "grocery"}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Grocery run", items[0].Title)

	// body search decrypts transiently and matches both
	items, err = svc.List(ctx, ListFilter{TextContains: "grocery", SearchBody: true}, Page{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// tag filter is case-insensitive
	items, err = svc.List(ctx, ListFilter{Tags: []string{"TRAVEL"}}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Trip notes", items[0].Title)
}

func TestCorruptCiphertextSurfacesAuthError(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "secret"})
	require.NoError(t, err)

	// flip one ciphertext byte behind the service's back
	err = st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		e, err := tx.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		e.EncryptedBody[len(e.EncryptedBody)-1] ^= 0x01
		return tx.Entries.Upsert(ctx, e)
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	_, _, err = svc.Export(ctx, []string{id})
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestExportReturnsPlaintextAndWarning(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	id, err := svc.Create(ctx, CreateParams{Title: "t", Body: "export me", Tags: []string{"x"}})
	require.NoError(t, err)

	got, warning, err := svc.Export(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, ExportWarning, warning)
	require.Len(t, got, 1)
	assert.Equal(t, "export me", got[0].Body)
	assert.Equal(t, []string{"x"}, got[0].Tags)
}

func TestStatusCountsPendingChanges(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Create(ctx, CreateParams{Title: "a", Body: "b"})
	require.NoError(t, err)
	id, err := svc.Create(ctx, CreateParams{Title: "b", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, []string{id}))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.PendingChanges) // one unpushed create plus one tombstone
	assert.Equal(t, 0, st.Conflicts)
	assert.False(t, st.RotationInProgress)
	assert.Empty(t, st.SyncCursor)
}

func ptr[T any](v T) *T { return &v }
