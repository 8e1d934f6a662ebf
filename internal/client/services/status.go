package services

import (
	"context"

	"github.com/quietlog/quietlog/internal/client/repositories/metadata"
	"github.com/quietlog/quietlog/internal/client/store"
)

// Status summarizes local state for the status surface: what still needs to
// reach the replica and what needs the user's attention.
type Status struct {
	// PendingChanges counts records with unpushed local changes,
	// tombstones included.
	PendingChanges int

	// Conflicts counts unresolved shadow copies.
	Conflicts int

	// SyncCursor is the last replica cursor this device acknowledged;
	// empty before the first successful pull.
	SyncCursor string

	// RotationInProgress is set while a key rotation still has records
	// sealed under the retiring key.
	RotationInProgress bool
}

// Status reports pending-change and conflict counts plus sync position.
func (s *EntryService) Status(ctx context.Context) (*Status, error) {
	st := &Status{RotationInProgress: s.keys.RotationInProgress()}
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		dirty, err := tx.Entries.ListDirty(ctx)
		if err != nil {
			return err
		}
		st.PendingChanges = len(dirty)

		st.Conflicts, err = tx.Shadows.Count(ctx)
		if err != nil {
			return err
		}

		cursor, err := tx.Metadata.Get(ctx, metadata.KeySyncCursor)
		if err != nil {
			return err
		}
		if cursor != nil {
			st.SyncCursor = string(cursor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
