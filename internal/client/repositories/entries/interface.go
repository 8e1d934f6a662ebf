package entries

import (
	"context"

	"github.com/quietlog/quietlog/internal/client/models"
)

// Filter narrows List results. Zero value means "all live entries".
type Filter struct {
	// TitleContains matches a case-insensitive substring of the plaintext
	// title. Body search happens above the repository, after transient
	// decryption.
	TitleContains string

	// TagFolds restricts to entries carrying all of the given folded tag
	// names.
	TagFolds []string

	// IncludeDeleted also returns tombstones.
	IncludeDeleted bool

	Limit  int
	Offset int
}

// Repository describes persistence for entry rows. Tag links live in the
// tags repository; callers compose the two inside one store transaction.
type Repository interface {
	// Upsert writes the full entry row (insert or replace by id).
	Upsert(ctx context.Context, e *models.Entry) error

	// GetByID returns one entry row (without tags) or common.ErrNotFound.
	// Tombstones are returned; callers decide how to treat them.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// List returns entry rows (without tags) matching the filter, newest
	// first by updated_at.
	List(ctx context.Context, f Filter) ([]*models.Entry, error)

	// ListDirty returns all rows with unpushed local changes, tombstones
	// included.
	ListDirty(ctx context.Context) ([]*models.Entry, error)

	// ListByKeyID returns up to limit rows sealed under keyID (tombstones
	// included), in stable id order. Used by the key-rotation job to resume
	// from the first unmigrated record.
	ListByKeyID(ctx context.Context, keyID string, limit int) ([]*models.Entry, error)

	// CountByKeyID counts rows sealed under keyID, tombstones included.
	CountByKeyID(ctx context.Context, keyID string) (int, error)

	// HardDelete removes a row outright (used once a tombstone has been
	// acknowledged remotely, and by tests).
	HardDelete(ctx context.Context, id string) error
}
