package tags

import (
	"context"
	"database/sql"
	"testing"

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
CREATE TABLE tags (
  name_fold TEXT PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE entry_tags (
  entry_id TEXT NOT NULL,
  name_fold TEXT NOT NULL,
  PRIMARY KEY (entry_id, name_fold)
);
`)
	require.NoError(t, err)

	return db
}

func TestSetEntryTags_CreatesAndLinks(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.SetEntryTags(ctx, "e1", []string{"Daily", "Work"}))

	got, err := r.TagsFor(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Daily", "Work"}, got)
}

func TestSetEntryTags_CaseInsensitiveDedup_FirstCasingWins(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.SetEntryTags(ctx, "e1", []string{"Work"}))
	require.NoError(t, r.SetEntryTags(ctx, "e2", []string{"work"}))

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Work", all[0].Name)
	assert.Equal(t, "work", all[0].Fold)
	assert.Equal(t, 2, all[0].RefCount)

	// both entries resolve to the preserved display casing
	got, err := r.TagsFor(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, got)
}

func TestSetEntryTags_ReplaceCollectsOrphans(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.SetEntryTags(ctx, "e1", []string{"a", "b"}))
	require.NoError(t, r.SetEntryTags(ctx, "e1", []string{"b", "c"}))

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Name)
	assert.Equal(t, "c", all[1].Name)
}

func TestRemoveEntryRefs_RefCounting(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.SetEntryTags(ctx, "e1", []string{"x"}))
	require.NoError(t, r.SetEntryTags(ctx, "e2", []string{"x"}))

	// one of two references removed: tag stays
	require.NoError(t, r.RemoveEntryRefs(ctx, "e1"))
	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].RefCount)

	// last reference removed: tag disappears
	require.NoError(t, r.RemoveEntryRefs(ctx, "e2"))
	all, err = r.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTagsFor_Empty(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	got, err := r.TagsFor(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}
