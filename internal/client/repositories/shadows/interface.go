package shadows

import (
	"context"

	"github.com/quietlog/quietlog/internal/client/models"
)

// Repository persists conflict shadow copies. A shadow is a first-class
// outcome of a merge conflict, not an error: the losing side's content kept
// recoverable for the user.
type Repository interface {
	// Insert stores a shadow. ID must be set by the caller.
	Insert(ctx context.Context, s *models.Shadow) error

	// GetByID returns one shadow or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Shadow, error)

	// ListByEntry returns shadows for one entry, newest first.
	ListByEntry(ctx context.Context, entryID string) ([]*models.Shadow, error)

	// ListAll returns all shadows, newest first.
	ListAll(ctx context.Context) ([]*models.Shadow, error)

	// Count returns the number of unresolved shadows.
	Count(ctx context.Context) (int, error)

	// Delete discards a shadow after the user resolved or dismissed it.
	Delete(ctx context.Context, id string) error

	// ListByKeyID returns shadows whose content is sealed under keyID.
	// Used by the key-rotation job so preserved conflict content stays
	// decryptable after the old key is discarded.
	ListByKeyID(ctx context.Context, keyID string) ([]*models.Shadow, error)

	// UpdateSealed swaps a shadow's ciphertext and sealing key id.
	UpdateSealed(ctx context.Context, id string, body []byte, keyID string) error
}
