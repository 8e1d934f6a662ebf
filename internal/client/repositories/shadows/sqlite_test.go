package shadows

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE shadows (
  id TEXT PRIMARY KEY,
  entry_id TEXT NOT NULL,
  origin TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  body_format TEXT NOT NULL DEFAULT 'plain',
  encrypted_body BLOB NOT NULL,
  tags TEXT NOT NULL DEFAULT '[]',
  sentiment REAL,
  is_locked INTEGER NOT NULL DEFAULT 0,
  key_id TEXT NOT NULL DEFAULT '',
  version INTEGER NOT NULL,
  captured_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func testShadow(id, entryID string, at time.Time) *models.Shadow {
	return &models.Shadow{
		ID:            id,
		EntryID:       entryID,
		Origin:        models.ShadowOriginLocal,
		Title:         "lost title",
		BodyFormat:    models.BodyFormatMarkdown,
		EncryptedBody: []byte("lost cipher"),
		Tags:          []string{"Daily"},
		KeyID:         "k1",
		Version:       2,
		CapturedAt:    at,
	}
}

func TestInsertGet_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	at := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	s := testShadow("s1", "e1", at)
	s.Sentiment = ptr(-0.25)
	require.NoError(t, r.Insert(ctx, s))

	got, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.EntryID, got.EntryID)
	assert.Equal(t, s.Origin, got.Origin)
	assert.Equal(t, s.Title, got.Title)
	assert.Equal(t, s.BodyFormat, got.BodyFormat)
	assert.Equal(t, s.EncryptedBody, got.EncryptedBody)
	assert.Equal(t, s.Tags, got.Tags)
	assert.Equal(t, "k1", got.KeyID)
	require.NotNil(t, got.Sentiment)
	assert.Equal(t, -0.25, *got.Sentiment)
	assert.Equal(t, at, got.CapturedAt)
}

func TestListByEntry_NewestFirst(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Insert(ctx, testShadow("s1", "e1", base)))
	require.NoError(t, r.Insert(ctx, testShadow("s2", "e1", base.Add(time.Hour))))
	require.NoError(t, r.Insert(ctx, testShadow("s3", "e2", base)))

	got, err := r.ListByEntry(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, testShadow("s1", "e1", time.Now())))
	require.NoError(t, r.Delete(ctx, "s1"))

	assert.ErrorIs(t, r.Delete(ctx, "s1"), common.ErrNotFound)
	_, err := r.GetByID(ctx, "s1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func ptr(f float64) *float64 { return &f }
