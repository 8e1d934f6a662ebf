package entries

import "github.com/quietlog/quietlog/internal/api"

// Entry is a journal record as the replica stores it: ciphertext plus
// plaintext metadata, never key material. ServerSeq orders accepted writes
// per user and feeds the changes cursor.
type Entry struct {
	UserID        string
	ID            string
	Title         string
	BodyFormat    string
	EncryptedBody []byte
	Tags          []string
	Sentiment     *float64
	IsLocked      bool
	Deleted       bool
	Version       int64
	KeyID         string
	CreatedAt     int64
	UpdatedAt     int64
	ServerSeq     int64
}

// ContentHash applies the canonical hash shared with clients.
func (e *Entry) ContentHash() string {
	return api.ContentHash(e.ID, e.Title, e.BodyFormat, e.EncryptedBody, e.Tags, e.IsLocked, e.Sentiment, e.Deleted)
}

// ToWire converts to the exchange format.
func (e *Entry) ToWire() api.SyncRecord {
	return api.SyncRecord{
		ID:            e.ID,
		Title:         e.Title,
		BodyFormat:    e.BodyFormat,
		EncryptedBody: e.EncryptedBody,
		Tags:          e.Tags,
		Sentiment:     e.Sentiment,
		IsLocked:      e.IsLocked,
		Deleted:       e.Deleted,
		Version:       e.Version,
		KeyID:         e.KeyID,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// FromWire builds a server entry for userID from a pushed record.
func FromWire(userID string, r *api.SyncRecord) *Entry {
	return &Entry{
		UserID:        userID,
		ID:            r.ID,
		Title:         r.Title,
		BodyFormat:    r.BodyFormat,
		EncryptedBody: r.EncryptedBody,
		Tags:          r.Tags,
		Sentiment:     r.Sentiment,
		IsLocked:      r.IsLocked,
		Deleted:       r.Deleted,
		Version:       r.Version,
		KeyID:         r.KeyID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
