package entries

import "context"

type Repository interface {
	// Get returns one record for the user or common.ErrNotFound.
	Get(ctx context.Context, userID, id string) (*Entry, error)

	// Upsert writes the record and assigns it a fresh server_seq, returned
	// to the caller.
	Upsert(ctx context.Context, e *Entry) (int64, error)

	// ListSince returns the user's records with server_seq > since in seq
	// order, tombstones included.
	ListSince(ctx context.Context, userID string, since int64, limit int) ([]*Entry, error)

	// MaxSeq returns the user's highest server_seq, 0 when empty.
	MaxSeq(ctx context.Context, userID string) (int64, error)
}
