// Package tags provides the SQLite-backed tag index: a deduplicated tag
// table plus the entry↔tag join table, with reference-counted cleanup.
package tags

import (
	"context"
	"fmt"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SetEntryTags(ctx context.Context, entryID string, names []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear entry tags: %w", err)
	}

	for _, name := range names {
		fold := models.FoldTagName(name)

		// Dedup is case-insensitive; the first writer's casing is kept.
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO tags (name_fold, name) VALUES (?, ?) ON CONFLICT(name_fold) DO NOTHING`,
			fold, name)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", name, err)
		}

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO entry_tags (entry_id, name_fold) VALUES (?, ?)`, entryID, fold)
		if err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}

	return r.collectOrphans(ctx)
}

func (r *SQLiteRepository) RemoveEntryRefs(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to remove entry tag refs: %w", err)
	}
	return r.collectOrphans(ctx)
}

// collectOrphans deletes tag rows whose reference count reached zero.
func (r *SQLiteRepository) collectOrphans(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tags WHERE name_fold NOT IN (SELECT DISTINCT name_fold FROM entry_tags)`)
	if err != nil {
		return fmt.Errorf("failed to collect orphaned tags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TagsFor(ctx context.Context, entryID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN entry_tags et ON et.name_fold = t.name_fold
		WHERE et.entry_id = ?
		ORDER BY t.name_fold`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select entry tags: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) All(ctx context.Context) ([]*models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name_fold, t.name, COUNT(et.entry_id)
		FROM tags t
		LEFT JOIN entry_tags et ON et.name_fold = t.name_fold
		GROUP BY t.name_fold, t.name
		ORDER BY t.name_fold`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	var result []*models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.Fold, &tag.Name, &tag.RefCount); err != nil {
			return nil, err
		}
		result = append(result, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
