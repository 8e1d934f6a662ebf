package models

import "time"

// ShadowOrigin names the side whose content lost a merge.
type ShadowOrigin string

const (
	ShadowOriginLocal  ShadowOrigin = "local"
	ShadowOriginRemote ShadowOrigin = "remote"
)

// Shadow preserves the losing side of a merge conflict so the user can
// recover it. It snapshots the full record content at the moment the
// conflict was resolved.
type Shadow struct {
	ID      string
	EntryID string
	Origin  ShadowOrigin

	Title         string
	BodyFormat    BodyFormat
	EncryptedBody []byte
	Tags          []string
	Sentiment     *float64
	IsLocked      bool

	// KeyID names the key that sealed EncryptedBody, so shadow content
	// stays decryptable across key rotations.
	KeyID string

	// Version is the entry version the losing content carried.
	Version int64

	CapturedAt time.Time
}

// ShadowOf snapshots an entry's content as a shadow copy.
func ShadowOf(e *Entry, origin ShadowOrigin, now time.Time) *Shadow {
	c := e.Clone()
	return &Shadow{
		EntryID:       c.ID,
		Origin:        origin,
		Title:         c.Title,
		BodyFormat:    c.BodyFormat,
		EncryptedBody: c.EncryptedBody,
		Tags:          c.Tags,
		Sentiment:     c.Sentiment,
		IsLocked:      c.IsLocked,
		KeyID:         c.KeyID,
		Version:       c.Version,
		CapturedAt:    now.UTC(),
	}
}
