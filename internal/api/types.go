// Package api defines the JSON wire contract shared by the sync client and
// the replica server. Both sides also share the canonical content hash used
// to break same-version conflicts, so they converge without negotiation.
package api

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// SyncRecord is one entry record on the wire. Bodies are opaque ciphertext;
// the replica never sees plaintext content or key material. KeyID labels
// which client-side key sealed the blob, so a second device sharing the key
// file can pick the right key on pull.
type SyncRecord struct {
	ID            string   `json:"id" validate:"required,uuid"`
	Title         string   `json:"title" validate:"max=100"`
	BodyFormat    string   `json:"body_format" validate:"required,oneof=plain markdown"`
	EncryptedBody []byte   `json:"encrypted_body"`
	Tags          []string `json:"tags,omitempty" validate:"dive,min=1,max=64"`
	Sentiment     *float64 `json:"sentiment,omitempty" validate:"omitempty,gte=-1,lte=1"`
	IsLocked      bool     `json:"is_locked"`
	Deleted       bool     `json:"deleted"`
	Version       int64    `json:"version" validate:"required,gt=0"`
	KeyID         string   `json:"key_id"`

	// Unix nanoseconds, UTC.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (r *SyncRecord) CreatedTime() time.Time { return time.Unix(0, r.CreatedAt).UTC() }

// UpdatedTime returns UpdatedAt as a time.Time.
func (r *SyncRecord) UpdatedTime() time.Time { return time.Unix(0, r.UpdatedAt).UTC() }

// ContentHash returns the canonical hex SHA-256 over an id-qualified record.
// Every field that counts as "content" participates; Version, Dirty and
// KeyID do not. Tags are sorted first so join order cannot affect the
// digest. Client and server must compute this identically.
func ContentHash(id, title, bodyFormat string, body []byte, tags []string, locked bool, sentiment *float64, deleted bool) string {
	h := sha256.New()
	sep := []byte{0}

	h.Write([]byte(id))
	h.Write(sep)
	h.Write([]byte(title))
	h.Write(sep)
	h.Write([]byte(bodyFormat))
	h.Write(sep)
	h.Write(body)
	h.Write(sep)

	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	for _, tag := range sorted {
		h.Write([]byte(tag))
		h.Write(sep)
	}

	h.Write([]byte(strconv.FormatBool(locked)))
	h.Write(sep)
	if sentiment != nil {
		h.Write([]byte(strconv.FormatFloat(*sentiment, 'g', -1, 64)))
	}
	h.Write([]byte(strconv.FormatBool(deleted)))

	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash applies the canonical hash to a wire record.
func (r *SyncRecord) ContentHash() string {
	return ContentHash(r.ID, r.Title, r.BodyFormat, r.EncryptedBody, r.Tags, r.IsLocked, r.Sentiment, r.Deleted)
}

// PushRequest carries a batch of locally changed records to the replica.
type PushRequest struct {
	DeviceID string       `json:"device_id"`
	Records  []SyncRecord `json:"records"`
}

// PushResponse acknowledges a push. Accepted lists the ids the replica
// stored; ids absent from it lost the server-side version comparison and
// will come back through the changes feed.
type PushResponse struct {
	Accepted []string `json:"accepted"`
	Cursor   string   `json:"cursor"`
}

// ChangesResponse is a page of records changed since the requested cursor.
type ChangesResponse struct {
	Records []SyncRecord `json:"records"`
	Cursor  string       `json:"cursor"`
}

// Credentials is the register/login request body.
type Credentials struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenPair is issued on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshRequest trades a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
