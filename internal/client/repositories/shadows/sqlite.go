// Package shadows provides SQLite persistence for merge-conflict shadow
// copies.
package shadows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const shadowColumns = `id, entry_id, origin, title, body_format, encrypted_body,
	tags, sentiment, is_locked, key_id, version, captured_at`

func (r *SQLiteRepository) Insert(ctx context.Context, s *models.Shadow) error {
	tagsJSON, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode shadow tags: %w", err)
	}
	var sentiment sql.NullFloat64
	if s.Sentiment != nil {
		sentiment = sql.NullFloat64{Float64: *s.Sentiment, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO shadows (`+shadowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.EntryID, string(s.Origin), s.Title, string(s.BodyFormat), s.EncryptedBody,
		string(tagsJSON), sentiment, s.IsLocked, s.KeyID, s.Version, s.CapturedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert shadow: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Shadow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shadowColumns+` FROM shadows WHERE id = ?`, id)
	s, err := scanShadow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shadow: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListByEntry(ctx context.Context, entryID string) ([]*models.Shadow, error) {
	return r.query(ctx,
		`SELECT `+shadowColumns+` FROM shadows WHERE entry_id = ? ORDER BY captured_at DESC, id`, entryID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*models.Shadow, error) {
	return r.query(ctx, `SELECT `+shadowColumns+` FROM shadows ORDER BY captured_at DESC, id`)
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shadows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count shadows: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shadows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shadow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListByKeyID(ctx context.Context, keyID string) ([]*models.Shadow, error) {
	return r.query(ctx, `SELECT `+shadowColumns+` FROM shadows WHERE key_id = ? ORDER BY id`, keyID)
}

func (r *SQLiteRepository) UpdateSealed(ctx context.Context, id string, body []byte, keyID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shadows SET encrypted_body = ?, key_id = ? WHERE id = ?`, body, keyID, id)
	if err != nil {
		return fmt.Errorf("failed to update shadow seal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.Shadow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select shadows: %w", err)
	}
	defer rows.Close()

	var result []*models.Shadow
	for rows.Next() {
		s, err := scanShadow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShadow(sc scanner) (*models.Shadow, error) {
	var (
		s          models.Shadow
		origin     string
		bodyFormat string
		tagsJSON   string
		sentiment  sql.NullFloat64
		capturedAt int64
	)
	err := sc.Scan(&s.ID, &s.EntryID, &origin, &s.Title, &bodyFormat, &s.EncryptedBody,
		&tagsJSON, &sentiment, &s.IsLocked, &s.KeyID, &s.Version, &capturedAt)
	if err != nil {
		return nil, err
	}
	s.Origin = models.ShadowOrigin(origin)
	s.BodyFormat = models.BodyFormat(bodyFormat)
	if err := json.Unmarshal([]byte(tagsJSON), &s.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode shadow tags: %w", err)
	}
	if sentiment.Valid {
		v := sentiment.Float64
		s.Sentiment = &v
	}
	s.CapturedAt = time.Unix(0, capturedAt).UTC()
	return &s, nil
}
