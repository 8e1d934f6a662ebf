// Package sessions tracks which devices sync against each account. Entries
// live in Redis with a sliding TTL; a device that stops syncing ages out on
// its own.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * 24 * time.Hour

// Store records per-device sync activity.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, ttl: defaultTTL}, nil
}

// Touch records sync activity for a device, refreshing its TTL.
func (s *Store) Touch(ctx context.Context, userID, deviceID string) error {
	if deviceID == "" {
		return nil
	}
	key := deviceKey(userID, deviceID)
	return s.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}

// Devices lists device ids that synced recently for the user.
func (s *Store) Devices(ctx context.Context, userID string) ([]string, error) {
	pattern := deviceKey(userID, "*")
	prefixLen := len(deviceKey(userID, ""))

	var devices []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		devices = append(devices, iter.Val()[prefixLen:])
	}
	return devices, iter.Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func deviceKey(userID, deviceID string) string {
	return fmt.Sprintf("device:%s:%s", userID, deviceID)
}
