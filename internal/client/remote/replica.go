// Package remote talks to the replica server over HTTP/JSON. The Replica
// interface keeps the sync engine testable with an in-memory fake.
package remote

import (
	"context"

	"github.com/quietlog/quietlog/internal/api"
)

// Replica is the transport the sync engine pushes to and pulls from.
type Replica interface {
	// Push uploads a batch of changed records. The response names which ids
	// the replica accepted; rejected ids lost a version comparison
	// server-side and will arrive through Changes.
	Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error)

	// Changes returns records the replica accepted after the given cursor,
	// tombstones included, plus the cursor to store on successful merge.
	Changes(ctx context.Context, since string) (*api.ChangesResponse, error)
}
