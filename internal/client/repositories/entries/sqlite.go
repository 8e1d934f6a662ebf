// Package entries provides the SQLite-backed repository for local entry rows.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/common"
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

const entryColumns = `id, created_at, updated_at, title, body_format, encrypted_body,
	sentiment, is_locked, version, deleted, dirty, key_id`

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.Entry) error {
	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			title = excluded.title,
			body_format = excluded.body_format,
			encrypted_body = excluded.encrypted_body,
			sentiment = excluded.sentiment,
			is_locked = excluded.is_locked,
			version = excluded.version,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			key_id = excluded.key_id
	`
	var sentiment sql.NullFloat64
	if e.Sentiment != nil {
		sentiment = sql.NullFloat64{Float64: *e.Sentiment, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.CreatedAt.UTC().UnixNano(), e.UpdatedAt.UTC().UnixNano(),
		e.Title, string(e.BodyFormat), e.EncryptedBody,
		sentiment, e.IsLocked, e.Version, e.Deleted, e.Dirty, e.KeyID)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]*models.Entry, error) {
	var (
		where []string
		args  []any
	)

	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.TitleContains != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.TitleContains)+"%")
	}
	for _, fold := range f.TagFolds {
		where = append(where, "EXISTS (SELECT 1 FROM entry_tags et WHERE et.entry_id = entries.id AND et.name_fold = ?)")
		args = append(args, fold)
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	return r.queryEntries(ctx, query, args...)
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM entries WHERE dirty = 1 ORDER BY id`)
}

func (r *SQLiteRepository) ListByKeyID(ctx context.Context, keyID string, limit int) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE key_id = ? ORDER BY id`
	args := []any{keyID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryEntries(ctx, query, args...)
}

func (r *SQLiteRepository) CountByKeyID(ctx context.Context, keyID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE key_id = ?`, keyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries by key: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) HardDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.Entry, error) {
	var (
		e          models.Entry
		createdAt  int64
		updatedAt  int64
		bodyFormat string
		sentiment  sql.NullFloat64
	)
	err := s.Scan(&e.ID, &createdAt, &updatedAt, &e.Title, &bodyFormat, &e.EncryptedBody,
		&sentiment, &e.IsLocked, &e.Version, &e.Deleted, &e.Dirty, &e.KeyID)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	e.BodyFormat = models.BodyFormat(bodyFormat)
	if sentiment.Valid {
		v := sentiment.Float64
		e.Sentiment = &v
	}
	return &e, nil
}
