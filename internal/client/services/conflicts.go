package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/common"
)

// Conflict is a losing entry version preserved by the Sync Engine's merge,
// decrypted for review.
type Conflict struct {
	ShadowID   string
	EntryID    string
	Origin     models.ShadowOrigin
	Title      string
	Body       string
	BodyFormat models.BodyFormat
	Tags       []string
	Sentiment  *float64
	IsLocked   bool
	Version    int64
	CapturedAt time.Time
}

// Conflicts lists all preserved losing versions, newest capture first.
func (s *EntryService) Conflicts(ctx context.Context) ([]*Conflict, error) {
	var result []*Conflict
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		rows, err := tx.Shadows.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, sh := range rows {
			c, err := s.decryptShadow(sh)
			if err != nil {
				return err
			}
			result = append(result, c)
		}
		return nil
	})
	return result, err
}

// RestoreConflict promotes a shadow's content back into its entry (or
// recreates the entry if the winner was a deletion), then discards the
// shadow. The restore is a normal local edit: version bumps past the
// current winner and the record becomes dirty, so the next sync cycle
// carries it to the replica.
func (s *EntryService) RestoreConflict(ctx context.Context, shadowID string) error {
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		sh, err := tx.Shadows.GetByID(ctx, shadowID)
		if err != nil {
			return err
		}

		e, err := tx.Entries.GetByID(ctx, sh.EntryID)
		switch {
		case err == nil:
		case errors.Is(err, common.ErrNotFound):
			// the winner was a hard-deleted record; recreate from scratch
			now := s.now().UTC()
			e = &models.Entry{ID: sh.EntryID, CreatedAt: now, UpdatedAt: now}
		default:
			return err
		}

		if !e.Deleted && e.IsLocked {
			return common.ErrEntryLocked
		}

		e.Title = sh.Title
		e.BodyFormat = sh.BodyFormat
		e.EncryptedBody = sh.EncryptedBody
		e.KeyID = sh.KeyID
		e.Tags = sh.Tags
		e.Sentiment = sh.Sentiment
		e.IsLocked = sh.IsLocked
		if sh.Version > e.Version {
			e.Version = sh.Version
		}
		e.Version++
		e.Deleted = false
		e.UpdatedAt = s.advance(e.UpdatedAt)
		e.Dirty = true

		if err := tx.Entries.Upsert(ctx, e); err != nil {
			return err
		}
		if err := tx.Tags.SetEntryTags(ctx, e.ID, e.Tags); err != nil {
			return err
		}
		if err := tx.Shadows.Delete(ctx, shadowID); err != nil {
			return err
		}
		tx.Notify(store.ChangeEvent{Origin: store.OriginLocal, Type: store.ChangeUpdated, EntryID: e.ID})
		return nil
	})
}

// DiscardConflict drops a preserved losing version for good.
func (s *EntryService) DiscardConflict(ctx context.Context, shadowID string) error {
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := tx.Shadows.GetByID(ctx, shadowID); err != nil {
			return err
		}
		return tx.Shadows.Delete(ctx, shadowID)
	})
}

func (s *EntryService) decryptShadow(sh *models.Shadow) (*Conflict, error) {
	box, err := s.keys.BoxForID(sh.KeyID)
	if err != nil {
		return nil, fmt.Errorf("key for shadow %s: %w", sh.ID, err)
	}
	plaintext, err := box.Open(sh.EncryptedBody)
	if err != nil {
		return nil, fmt.Errorf("decrypt shadow %s: %w", sh.ID, err)
	}
	return &Conflict{
		ShadowID:   sh.ID,
		EntryID:    sh.EntryID,
		Origin:     sh.Origin,
		Title:      sh.Title,
		Body:       string(plaintext),
		BodyFormat: sh.BodyFormat,
		Tags:       sh.Tags,
		Sentiment:  sh.Sentiment,
		IsLocked:   sh.IsLocked,
		Version:    sh.Version,
		CapturedAt: sh.CapturedAt,
	}, nil
}
