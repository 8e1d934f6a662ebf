package services

import (
	"context"
	"fmt"

	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/cryptox"
)

// rotationChunk bounds how many entries one transaction re-encrypts, so a
// crash mid-rotation loses at most one chunk of progress.
const rotationChunk = 64

// RotateKey generates a fresh data key, re-encrypts every sealed blob in the
// store under it (live entries, tombstones and conflict shadows alike) and
// retires the old key. The migration is resumable: if a previous rotation
// was interrupted, the call picks it up from the first unmigrated record
// instead of starting another one. During the migration both keys decrypt,
// so reads keep working throughout.
//
// Re-encrypted entries count as content changes: version bumps and the row
// goes dirty, because the ciphertext the replica holds is now stale.
func (s *EntryService) RotateKey(ctx context.Context) error {
	newID, oldID, err := s.keys.BeginRotation()
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}

	newBox, err := s.keys.BoxForID(newID)
	if err != nil {
		return fmt.Errorf("new key: %w", err)
	}
	oldBox, err := s.keys.BoxForID(oldID)
	if err != nil {
		return fmt.Errorf("old key: %w", err)
	}

	s.log.Info(ctx, "key rotation started", "new_key_id", newID, "old_key_id", oldID)

	for {
		migrated, err := s.rotateChunk(ctx, oldID, newID, oldBox, newBox)
		if err != nil {
			return err
		}
		if migrated == 0 {
			break
		}
		s.log.Debug(ctx, "rotated entry chunk", "count", migrated)
	}

	if err := s.rotateShadows(ctx, oldID, newID, oldBox, newBox); err != nil {
		return err
	}

	// nothing remains under the old key; drop it from the key file
	if err := s.keys.FinishRotation(); err != nil {
		return fmt.Errorf("finish rotation: %w", err)
	}
	s.log.Info(ctx, "key rotation finished", "active_key_id", newID)
	return nil
}

func (s *EntryService) rotateChunk(ctx context.Context, oldID, newID string, oldBox, newBox *cryptox.Box) (int, error) {
	migrated := 0
	err := s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		rows, err := tx.Entries.ListByKeyID(ctx, oldID, rotationChunk)
		if err != nil {
			return err
		}
		for _, e := range rows {
			plaintext, err := oldBox.Open(e.EncryptedBody)
			if err != nil {
				return fmt.Errorf("rotate entry %s: %w", e.ID, err)
			}
			blob, err := newBox.Seal(plaintext)
			if err != nil {
				return fmt.Errorf("rotate entry %s: %w", e.ID, err)
			}
			e.EncryptedBody = blob
			e.KeyID = newID
			e.Version++
			e.UpdatedAt = s.advance(e.UpdatedAt)
			e.Dirty = true
			if err := tx.Entries.Upsert(ctx, e); err != nil {
				return err
			}
		}
		migrated = len(rows)
		return nil
	})
	return migrated, err
}

func (s *EntryService) rotateShadows(ctx context.Context, oldID, newID string, oldBox, newBox *cryptox.Box) error {
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		rows, err := tx.Shadows.ListByKeyID(ctx, oldID)
		if err != nil {
			return err
		}
		for _, sh := range rows {
			plaintext, err := oldBox.Open(sh.EncryptedBody)
			if err != nil {
				return fmt.Errorf("rotate shadow %s: %w", sh.ID, err)
			}
			blob, err := newBox.Seal(plaintext)
			if err != nil {
				return fmt.Errorf("rotate shadow %s: %w", sh.ID, err)
			}
			if err := tx.Shadows.UpdateSealed(ctx, sh.ID, blob, newID); err != nil {
				return err
			}
		}
		return nil
	})
}
