// Package models defines the client-side journal data model: entry records,
// tags and conflict shadow copies.
package models

import (
	"time"

	"github.com/quietlog/quietlog/internal/api"
)

// BodyFormat describes how a decrypted body should be rendered.
type BodyFormat string

const (
	BodyFormatPlain    BodyFormat = "plain"
	BodyFormatMarkdown BodyFormat = "markdown"
)

// Valid reports whether f is one of the known formats.
func (f BodyFormat) Valid() bool {
	return f == BodyFormatPlain || f == BodyFormatMarkdown
}

// Entry is a single journal entry as persisted in the local store and
// exchanged with the replica. The body is always ciphertext here; plaintext
// exists only transiently inside the Entry Service.
type Entry struct {
	// ID is a globally unique identifier, immutable after creation.
	ID string

	// CreatedAt is immutable; UpdatedAt is monotonically non-decreasing and
	// advances on every successful mutation. Both are UTC.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Title is plaintext, used for list display and search without
	// decrypting the body.
	Title string

	BodyFormat BodyFormat

	// EncryptedBody is the AEAD blob produced by cryptox.Box. Never empty
	// for a live record.
	EncryptedBody []byte

	// Sentiment is supplied by an external analyzer; derived, not
	// authoritative. Range [-1, 1] when present.
	Sentiment *float64

	// Tags holds display-cased tag names. Set semantics, order irrelevant.
	Tags []string

	// IsLocked rejects all content mutations while true.
	IsLocked bool

	// Version increments by exactly 1 per successful local content mutation
	// and is the primary merge comparator.
	Version int64

	// Deleted marks a tombstone kept until the replica acknowledges it.
	Deleted bool

	// Dirty marks rows with local changes not yet pushed.
	Dirty bool

	// KeyID names the keystore key that sealed EncryptedBody. Used by the
	// rotation protocol to find unmigrated rows.
	KeyID string
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.EncryptedBody = append([]byte(nil), e.EncryptedBody...)
	c.Tags = append([]string(nil), e.Tags...)
	if e.Sentiment != nil {
		s := *e.Sentiment
		c.Sentiment = &s
	}
	return &c
}

// ContentHash returns the canonical hex SHA-256 over the id-qualified
// record content. It is the deterministic tie-breaker for same-version
// conflicts: both replicas hash the exact bytes they exchanged, so they
// agree on the winner without negotiation.
func (e *Entry) ContentHash() string {
	return api.ContentHash(e.ID, e.Title, string(e.BodyFormat), e.EncryptedBody, e.Tags, e.IsLocked, e.Sentiment, e.Deleted)
}

// SameContent reports whether two records carry identical content for
// conflict-detection purposes.
func (e *Entry) SameContent(other *Entry) bool {
	return e.ContentHash() == other.ContentHash()
}

// ToWire converts the entry to its wire representation.
func (e *Entry) ToWire() api.SyncRecord {
	c := e.Clone()
	return api.SyncRecord{
		ID:            c.ID,
		Title:         c.Title,
		BodyFormat:    string(c.BodyFormat),
		EncryptedBody: c.EncryptedBody,
		Tags:          c.Tags,
		Sentiment:     c.Sentiment,
		IsLocked:      c.IsLocked,
		Deleted:       c.Deleted,
		Version:       c.Version,
		KeyID:         c.KeyID,
		CreatedAt:     c.CreatedAt.UnixNano(),
		UpdatedAt:     c.UpdatedAt.UnixNano(),
	}
}

// EntryFromWire builds a store entry from a pulled wire record. The caller
// decides Dirty; records applied from a merge are clean.
func EntryFromWire(r *api.SyncRecord) *Entry {
	return &Entry{
		ID:            r.ID,
		CreatedAt:     r.CreatedTime(),
		UpdatedAt:     r.UpdatedTime(),
		Title:         r.Title,
		BodyFormat:    BodyFormat(r.BodyFormat),
		EncryptedBody: append([]byte(nil), r.EncryptedBody...),
		Sentiment:     r.Sentiment,
		Tags:          append([]string(nil), r.Tags...),
		IsLocked:      r.IsLocked,
		Deleted:       r.Deleted,
		Version:       r.Version,
		KeyID:         r.KeyID,
	}
}
