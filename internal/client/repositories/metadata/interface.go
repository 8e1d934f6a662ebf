package metadata

import "context"

// Known metadata keys.
const (
	KeySyncCursor   = "sync_cursor"
	KeyActiveKeyID  = "active_key_id"
	KeyDeviceID     = "device_id"
	KeyRefreshToken = "refresh_token"
)

// Repository is a small key/value store for per-device scalar state: the
// sync cursor, the active key identifier, and the device id.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
