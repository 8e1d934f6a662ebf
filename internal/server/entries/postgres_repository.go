package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quietlog/quietlog/internal/common"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `user_id, id, title, body_format, encrypted_body, tags,
	sentiment, is_locked, deleted, version, key_id, created_at, updated_at, server_seq`

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1 AND id = $2`

	row := r.db.QueryRowContext(ctx, query, userID, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, e *Entry) (int64, error) {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return 0, fmt.Errorf("encoding tags: %w", err)
	}

	// server_seq comes from a shared sequence on insert and update alike,
	// so every accepted write moves the changes cursor
	query :=
		`INSERT INTO entries (user_id, id, title, body_format, encrypted_body, tags,
			sentiment, is_locked, deleted, version, key_id, created_at, updated_at, server_seq)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, nextval('entries_seq'))
		 ON CONFLICT (user_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			body_format = EXCLUDED.body_format,
			encrypted_body = EXCLUDED.encrypted_body,
			tags = EXCLUDED.tags,
			sentiment = EXCLUDED.sentiment,
			is_locked = EXCLUDED.is_locked,
			deleted = EXCLUDED.deleted,
			version = EXCLUDED.version,
			key_id = EXCLUDED.key_id,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			server_seq = nextval('entries_seq')
		 RETURNING server_seq
		 `

	var seq int64
	err = r.db.QueryRowContext(ctx, query,
		e.UserID, e.ID, e.Title, e.BodyFormat, e.EncryptedBody, tagsJSON,
		e.Sentiment, e.IsLocked, e.Deleted, e.Version, e.KeyID, e.CreatedAt, e.UpdatedAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	e.ServerSeq = seq
	return seq, nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, userID string, since int64, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		 WHERE user_id = $1 AND server_seq > $2
		 ORDER BY server_seq
		 LIMIT $3`
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) MaxSeq(ctx context.Context, userID string) (int64, error) {
	var seq sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(server_seq) FROM entries WHERE user_id = $1`, userID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return seq.Int64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var tagsJSON []byte
	err := row.Scan(&e.UserID, &e.ID, &e.Title, &e.BodyFormat, &e.EncryptedBody, &tagsJSON,
		&e.Sentiment, &e.IsLocked, &e.Deleted, &e.Version, &e.KeyID, &e.CreatedAt, &e.UpdatedAt, &e.ServerSeq)
	if err != nil {
		return nil, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &e.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}
	}
	return e, nil
}
