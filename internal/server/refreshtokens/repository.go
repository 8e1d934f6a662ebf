package refreshtokens

import (
	"context"
	"time"
)

// RefreshToken is a stored opaque refresh credential.
type RefreshToken struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

type Repository interface {
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns the token row or common.ErrNotFound.
	Find(ctx context.Context, token string) (*RefreshToken, error)

	// Delete removes a token; rotating a refresh token deletes the old one.
	Delete(ctx context.Context, token string) error
}
