package tags

import (
	"context"

	"github.com/quietlog/quietlog/internal/client/models"
)

// Repository maintains the deduplicated tag index and the entry↔tag links.
// A tag row exists exactly while at least one entry references it; link
// mutations keep the index consistent.
type Repository interface {
	// SetEntryTags replaces the link set for an entry with the given display
	// names, creating missing tag rows and garbage-collecting tags whose
	// last reference disappears. Names must already be normalized
	// (models.NormalizeTags).
	SetEntryTags(ctx context.Context, entryID string, names []string) error

	// RemoveEntryRefs drops all links for an entry and garbage-collects
	// orphaned tags. Used on delete/tombstone.
	RemoveEntryRefs(ctx context.Context, entryID string) error

	// TagsFor returns the display names linked to an entry, sorted
	// case-insensitively.
	TagsFor(ctx context.Context, entryID string) ([]string, error)

	// All returns the whole index with reference counts, sorted by folded
	// name.
	All(ctx context.Context) ([]*models.Tag, error)
}
