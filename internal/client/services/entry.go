// Package services implements the Entry Service: the public CRUD,
// versioning, locking, export and conflict-resolution surface consumed by
// presentation code. It is the only component that handles plaintext bodies,
// and only transiently; everything below it sees ciphertext.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/quietlog/quietlog/internal/client/keystore"
	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/client/repositories/entries"
	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/cryptox"
	"github.com/quietlog/quietlog/internal/logging"
)

// Validation limits enforced at this boundary (not inside the store).
const (
	MaxTitleChars = 100
	MaxBodyChars  = 10000
	MaxTagChars   = 64
)

// EntryService is the public API over the Local Store, Crypto Unit and key
// store.
type EntryService struct {
	store *store.Store
	keys  *keystore.KeyStore
	log   logging.Logger

	now func() time.Time
}

// NewEntryService wires an EntryService. The key store must be unlocked
// before any operation that touches bodies.
func NewEntryService(st *store.Store, keys *keystore.KeyStore, log logging.Logger) *EntryService {
	return &EntryService{store: st, keys: keys, log: log, now: time.Now}
}

// DecryptedEntry is an entry with its body in plaintext. Instances are
// transient: the service never caches them.
type DecryptedEntry struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Title      string
	Body       string
	BodyFormat models.BodyFormat
	Sentiment  *float64
	Tags       []string
	IsLocked   bool
	Version    int64
}

// ListItem is a list row: plaintext metadata only, no body.
type ListItem struct {
	ID        string
	UpdatedAt time.Time
	Title     string
	Tags      []string
	IsLocked  bool
	Version   int64
	Sentiment *float64
}

// CreateParams carries the inputs for Create. Sentiment, when present, comes
// from an external analyzer; the service stores, never computes it.
type CreateParams struct {
	Title     string
	Body      string
	Format    models.BodyFormat // defaults to plain
	Tags      []string
	Sentiment *float64
}

// Create validates, encrypts and persists a new entry, returning its id.
func (s *EntryService) Create(ctx context.Context, p CreateParams) (string, error) {
	format := p.Format
	if format == "" {
		format = models.BodyFormatPlain
	}
	if err := validate(p.Title, p.Body, format, p.Sentiment); err != nil {
		return "", err
	}
	tags := models.NormalizeTags(p.Tags)
	if err := validateTags(tags); err != nil {
		return "", err
	}

	keyID, box, err := s.activeBox()
	if err != nil {
		return "", err
	}
	blob, err := box.Seal([]byte(p.Body))
	if err != nil {
		return "", fmt.Errorf("encrypt body: %w", err)
	}

	now := s.now().UTC()
	e := &models.Entry{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Title:         strings.TrimSpace(p.Title),
		BodyFormat:    format,
		EncryptedBody: blob,
		Sentiment:     p.Sentiment,
		Tags:          tags,
		Version:       1,
		Dirty:         true,
		KeyID:         keyID,
	}

	err = s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		if err := tx.Entries.Upsert(ctx, e); err != nil {
			return err
		}
		if err := tx.Tags.SetEntryTags(ctx, e.ID, e.Tags); err != nil {
			return err
		}
		tx.Notify(store.ChangeEvent{Origin: store.OriginLocal, Type: store.ChangeCreated, EntryID: e.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("saving error: %w", err)
	}
	return e.ID, nil
}

// UpdateParams carries partial updates; nil fields stay unchanged.
type UpdateParams struct {
	Title     *string
	Body      *string
	Format    *models.BodyFormat
	Tags      []string // nil = unchanged, empty slice clears
	Sentiment *float64 // nil = unchanged
}

// Update applies a content mutation to one entry: re-encrypts a changed
// body, bumps version by exactly 1, advances updated_at, re-validates
// constraints. Locked entries reject the mutation with ErrEntryLocked.
func (s *EntryService) Update(ctx context.Context, id string, p UpdateParams) error {
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		e, err := tx.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.Deleted {
			return common.ErrNotFound
		}
		if e.IsLocked {
			return common.ErrEntryLocked
		}

		title := e.Title
		if p.Title != nil {
			title = strings.TrimSpace(*p.Title)
		}
		format := e.BodyFormat
		if p.Format != nil {
			format = *p.Format
		}

		if err := validateMeta(title, format, p.Sentiment); err != nil {
			return err
		}
		if p.Body != nil {
			if err := validateBody(*p.Body); err != nil {
				return err
			}
			keyID, box, err := s.activeBox()
			if err != nil {
				return err
			}
			blob, err := box.Seal([]byte(*p.Body))
			if err != nil {
				return fmt.Errorf("encrypt body: %w", err)
			}
			e.EncryptedBody = blob
			e.KeyID = keyID
		}
		e.Title = title
		e.BodyFormat = format
		if p.Sentiment != nil {
			e.Sentiment = p.Sentiment
		}
		if p.Tags != nil {
			tags := models.NormalizeTags(p.Tags)
			if err := validateTags(tags); err != nil {
				return err
			}
			e.Tags = tags
			if err := tx.Tags.SetEntryTags(ctx, e.ID, e.Tags); err != nil {
				return err
			}
		}

		e.Version++
		e.UpdatedAt = s.advance(e.UpdatedAt)
		e.Dirty = true

		if err := tx.Entries.Upsert(ctx, e); err != nil {
			return err
		}
		tx.Notify(store.ChangeEvent{Origin: store.OriginLocal, Type: store.ChangeUpdated, EntryID: e.ID})
		return nil
	})
}

// ToggleLock flips is_locked. Always permitted regardless of the current
// lock state. The flag change syncs with the record but does not count as a
// content mutation, so version stays put.
func (s *EntryService) ToggleLock(ctx context.Context, id string) error {
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		e, err := tx.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.Deleted {
			return common.ErrNotFound
		}

		e.IsLocked = !e.IsLocked
		e.UpdatedAt = s.advance(e.UpdatedAt)
		e.Dirty = true

		if err := tx.Entries.Upsert(ctx, e); err != nil {
			return err
		}
		tx.Notify(store.ChangeEvent{Origin: store.OriginLocal, Type: store.ChangeUpdated, EntryID: e.ID})
		return nil
	})
}

// Delete tombstones a batch of entries, all-or-nothing: a missing id fails
// the whole call. Tag references are released immediately; the tombstone row
// stays behind for the Sync Engine until the replica acknowledges it.
func (s *EntryService) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, id := range ids {
			e, err := tx.Entries.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			if e.Deleted {
				return fmt.Errorf("delete %s: %w", id, common.ErrNotFound)
			}

			e.Deleted = true
			e.Tags = nil
			e.Version++
			e.UpdatedAt = s.advance(e.UpdatedAt)
			e.Dirty = true

			if err := tx.Entries.Upsert(ctx, e); err != nil {
				return err
			}
			if err := tx.Tags.RemoveEntryRefs(ctx, id); err != nil {
				return err
			}
			tx.Notify(store.ChangeEvent{Origin: store.OriginLocal, Type: store.ChangeDeleted, EntryID: id})
		}
		return nil
	})
}

// Get returns one entry with its body decrypted. Decryption failure
// propagates as ErrAuthenticationFailed, never as empty content.
func (s *EntryService) Get(ctx context.Context, id string) (*DecryptedEntry, error) {
	var result *DecryptedEntry
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		e, err := tx.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.Deleted {
			return common.ErrNotFound
		}
		tagNames, err := tx.Tags.TagsFor(ctx, e.ID)
		if err != nil {
			return err
		}
		e.Tags = tagNames

		body, err := s.decryptBody(e)
		if err != nil {
			return err
		}
		result = decrypted(e, body)
		return nil
	})
	return result, err
}

// ListFilter narrows List results.
type ListFilter struct {
	// TextContains matches the plaintext title; with SearchBody set it also
	// matches decrypted body content. Body decryption is transient and
	// per-call; plaintext is never cached.
	TextContains string
	SearchBody   bool

	// Tags restricts to entries carrying all given tags
	// (case-insensitive).
	Tags []string
}

// Page bounds a List call.
type Page struct {
	Limit  int
	Offset int
}

// List returns plaintext-metadata rows matching the filter, newest first.
// Bodies are not returned; use Get for full content.
func (s *EntryService) List(ctx context.Context, f ListFilter, page Page) ([]*ListItem, error) {
	folds := make([]string, 0, len(f.Tags))
	for _, tag := range f.Tags {
		folds = append(folds, models.FoldTagName(tag))
	}

	var items []*ListItem
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		repoFilter := entries.Filter{TagFolds: folds}
		if f.TextContains != "" && !f.SearchBody {
			// title-only match pushes down to SQL, as does paging
			repoFilter.TitleContains = f.TextContains
		}
		searchInBody := f.TextContains != "" && f.SearchBody
		if !searchInBody {
			repoFilter.Limit = page.Limit
			repoFilter.Offset = page.Offset
		}

		rows, err := tx.Entries.List(ctx, repoFilter)
		if err != nil {
			return err
		}

		for _, e := range rows {
			if searchInBody && !s.matchesText(ctx, e, f.TextContains) {
				continue
			}
			tagNames, err := tx.Tags.TagsFor(ctx, e.ID)
			if err != nil {
				return err
			}
			items = append(items, &ListItem{
				ID:        e.ID,
				UpdatedAt: e.UpdatedAt,
				Title:     e.Title,
				Tags:      tagNames,
				IsLocked:  e.IsLocked,
				Version:   e.Version,
				Sentiment: e.Sentiment,
			})
		}

		if searchInBody {
			items = slicePage(items, page)
		}
		return nil
	})
	return items, err
}

// matchesText reports whether the needle occurs in the title or, after
// transient decryption, in the body. Undecryptable bodies are skipped from
// search results but logged; Get on them still surfaces the error.
func (s *EntryService) matchesText(ctx context.Context, e *models.Entry, needle string) bool {
	lowered := strings.ToLower(needle)
	if strings.Contains(strings.ToLower(e.Title), lowered) {
		return true
	}
	body, err := s.decryptBody(e)
	if err != nil {
		s.log.Warn(ctx, "skipping undecryptable body in search", "entry_id", e.ID, "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(body), lowered)
}

// ExportWarning accompanies every export: the output is no longer protected
// by the store's encryption.
const ExportWarning = "exported entries are decrypted plaintext; store the output carefully"

// Export decrypts the given entries for one-shot plaintext export. The
// returned warning must be shown to the user.
func (s *EntryService) Export(ctx context.Context, ids []string) ([]*DecryptedEntry, string, error) {
	var result []*DecryptedEntry
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, id := range ids {
			e, err := tx.Entries.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("export %s: %w", id, err)
			}
			if e.Deleted {
				return fmt.Errorf("export %s: %w", id, common.ErrNotFound)
			}
			tagNames, err := tx.Tags.TagsFor(ctx, e.ID)
			if err != nil {
				return err
			}
			e.Tags = tagNames

			body, err := s.decryptBody(e)
			if err != nil {
				return fmt.Errorf("export %s: %w", id, err)
			}
			result = append(result, decrypted(e, body))
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result, ExportWarning, nil
}

func (s *EntryService) activeBox() (string, *cryptox.Box, error) {
	keyID, key, err := s.keys.ActiveKey()
	if err != nil {
		return "", nil, fmt.Errorf("active key: %w", err)
	}
	box, err := cryptox.NewBox(key)
	if err != nil {
		return "", nil, err
	}
	return keyID, box, nil
}

func (s *EntryService) decryptBody(e *models.Entry) (string, error) {
	box, err := s.keys.BoxForID(e.KeyID)
	if err != nil {
		return "", fmt.Errorf("key for entry %s: %w", e.ID, err)
	}
	plaintext, err := box.Open(e.EncryptedBody)
	if err != nil {
		return "", fmt.Errorf("decrypt entry %s: %w", e.ID, err)
	}
	return string(plaintext), nil
}

// advance returns now, bumped if needed so updated_at never goes backwards.
func (s *EntryService) advance(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func decrypted(e *models.Entry, body string) *DecryptedEntry {
	return &DecryptedEntry{
		ID:         e.ID,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		Title:      e.Title,
		Body:       body,
		BodyFormat: e.BodyFormat,
		Sentiment:  e.Sentiment,
		Tags:       e.Tags,
		IsLocked:   e.IsLocked,
		Version:    e.Version,
	}
}

func validate(title, body string, format models.BodyFormat, sentiment *float64) error {
	if err := validateMeta(title, format, sentiment); err != nil {
		return err
	}
	return validateBody(body)
}

func validateMeta(title string, format models.BodyFormat, sentiment *float64) error {
	if utf8.RuneCountInString(title) > MaxTitleChars {
		return fmt.Errorf("title exceeds %d characters: %w", MaxTitleChars, common.ErrValidation)
	}
	if !format.Valid() {
		return fmt.Errorf("unknown body format %q: %w", format, common.ErrValidation)
	}
	if sentiment != nil && (*sentiment < -1 || *sentiment > 1) {
		return fmt.Errorf("sentiment %v outside [-1, 1]: %w", *sentiment, common.ErrValidation)
	}
	return nil
}

// validateTags runs on normalized tags. The replica enforces the same
// bound; an over-long tag accepted here would poison every push batch the
// entry rides in.
func validateTags(tags []string) error {
	for _, tag := range tags {
		if utf8.RuneCountInString(tag) > MaxTagChars {
			return fmt.Errorf("tag %q exceeds %d characters: %w", tag, MaxTagChars, common.ErrValidation)
		}
	}
	return nil
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("body must not be blank: %w", common.ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("body exceeds %d characters: %w", MaxBodyChars, common.ErrValidation)
	}
	return nil
}

func slicePage(items []*ListItem, page Page) []*ListItem {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
