// Package sync drives replication between the local store and the replica
// server. The engine is an explicit state machine; every network call sits
// outside store transactions, and local CRUD never waits on it.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/client/models"
	"github.com/quietlog/quietlog/internal/client/remote"
	"github.com/quietlog/quietlog/internal/client/repositories/metadata"
	"github.com/quietlog/quietlog/internal/client/store"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
)

// State names the engine's current phase.
type State string

const (
	StateIdle    State = "idle"
	StatePushing State = "pushing"
	StatePulling State = "pulling"
	StateMerging State = "merging"
	StateError   State = "error"
)

// Options tune the engine. Zero values pick the defaults.
type Options struct {
	// Interval between periodic sync cycles.
	Interval time.Duration

	// Debounce delays a cycle after a burst of local commits so rapid
	// edits coalesce into one push.
	Debounce time.Duration

	// BackoffBase seeds the exponential backoff used in the Error state.
	BackoffBase time.Duration

	// BackoffCap bounds a single backoff delay.
	BackoffCap time.Duration

	// DegradedAfter is the consecutive-failure count that raises the
	// degraded flag.
	DegradedAfter int
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 2 * time.Minute
	}
	if o.DegradedAfter <= 0 {
		o.DegradedAfter = 5
	}
}

// Info is a snapshot of engine health for the status surface.
type Info struct {
	State    State
	Degraded bool
	Failures int
	LastErr  error
	LastSync time.Time
}

// Engine replicates the local store against a replica.
type Engine struct {
	store   *store.Store
	replica remote.Replica
	log     logging.Logger
	opts    Options

	kick chan struct{}
	now  func() time.Time

	mu       stdsync.Mutex
	state    State
	degraded bool
	failures int
	lastErr  error
	lastSync time.Time
}

// New builds an engine. Run must be called for triggers to take effect;
// Sync works standalone.
func New(st *store.Store, replica remote.Replica, log logging.Logger, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		store:   st,
		replica: replica,
		log:     log,
		opts:    opts,
		kick:    make(chan struct{}, 1),
		now:     time.Now,
		state:   StateIdle,
	}
}

// Info returns the current engine snapshot.
func (e *Engine) Info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Info{
		State:    e.state,
		Degraded: e.degraded,
		Failures: e.failures,
		LastErr:  e.lastErr,
		LastSync: e.lastSync,
	}
}

// SyncNow requests a cycle outside the regular schedule. Non-blocking; a
// pending request is enough.
func (e *Engine) SyncNow() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run drives the engine until ctx is cancelled: periodic cycles, debounced
// cycles after local commits, and manual SyncNow kicks. Failed cycles move
// to the Error state and retry with capped exponential backoff; local CRUD
// keeps working throughout.
func (e *Engine) Run(ctx context.Context) error {
	events, cancel := e.store.Subscribe(64)
	defer cancel()

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	debounce := time.NewTimer(e.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			// merge-applied changes must not re-trigger the cycle that
			// produced them
			if ev.Origin != store.OriginLocal {
				continue
			}
			debounce.Reset(e.opts.Debounce)
			continue
		case <-debounce.C:
		case <-e.kick:
		case <-ticker.C:
		}

		if err := e.syncWithRetry(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			e.log.Error(ctx, "sync giving up until next trigger", "error", err)
		}
	}
}

// syncWithRetry runs cycles until one succeeds, waiting out the backoff in
// the Error state between attempts. Cancellation is honored between
// attempts, never mid-transaction.
func (e *Engine) syncWithRetry(ctx context.Context) error {
	backoff := retry.WithCappedDuration(e.opts.BackoffCap,
		retry.WithJitter(e.opts.BackoffBase/2, retry.NewExponential(e.opts.BackoffBase)))

	for {
		err := e.Sync(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, common.ErrUnauthorized) {
			// credentials problem; retrying cannot help
			return err
		}

		delay, stop := backoff.Next()
		if stop {
			return err
		}
		e.log.Warn(ctx, "sync cycle failed, backing off", "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Sync runs one full cycle: push dirty records, pull changes since the
// stored cursor, merge them in one transaction. The cursor advances only
// when the merge commits.
func (e *Engine) Sync(ctx context.Context) error {
	err := e.cycle(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateError
		e.failures++
		e.lastErr = err
		if e.failures >= e.opts.DegradedAfter {
			e.degraded = true
		}
		return err
	}
	e.state = StateIdle
	e.failures = 0
	e.degraded = false
	e.lastErr = nil
	e.lastSync = e.now().UTC()
	return nil
}

func (e *Engine) cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.setState(StatePushing)
	if err := e.push(ctx); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.setState(StatePulling)
	changes, err := e.pull(ctx)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.setState(StateMerging)
	if err := e.merge(ctx, changes); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// push uploads dirty records and settles the acknowledged ones: accepted
// live rows go clean, accepted tombstones are dropped for good. A row
// edited while the request was in flight keeps its dirty flag.
func (e *Engine) push(ctx context.Context) error {
	var (
		batch    []api.SyncRecord
		versions map[string]int64
		deviceID string
	)
	err := e.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		dirty, err := tx.Entries.ListDirty(ctx)
		if err != nil {
			return err
		}
		versions = make(map[string]int64, len(dirty))
		for _, rec := range dirty {
			rec.Tags, err = tx.Tags.TagsFor(ctx, rec.ID)
			if err != nil {
				return err
			}
			batch = append(batch, rec.ToWire())
			versions[rec.ID] = rec.Version
		}
		deviceID, err = e.deviceID(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	resp, err := e.replica.Push(ctx, api.PushRequest{DeviceID: deviceID, Records: batch})
	if err != nil {
		return err
	}
	e.log.Debug(ctx, "pushed records", "sent", len(batch), "accepted", len(resp.Accepted))

	return e.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, id := range resp.Accepted {
			rec, err := tx.Entries.GetByID(ctx, id)
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.Version != versions[id] {
				continue // changed since the snapshot; re-push next cycle
			}
			if rec.Deleted {
				if err := tx.Entries.HardDelete(ctx, id); err != nil {
					return err
				}
				continue
			}
			rec.Dirty = false
			if err := tx.Entries.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) pull(ctx context.Context) (*api.ChangesResponse, error) {
	var cursor string
	err := e.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		raw, err := tx.Metadata.Get(ctx, metadata.KeySyncCursor)
		if err != nil {
			return err
		}
		cursor = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.replica.Changes(ctx, cursor)
}

// deviceID returns the stable per-install identifier, minting one on first
// use.
func (e *Engine) deviceID(ctx context.Context, tx *store.Tx) (string, error) {
	raw, err := tx.Metadata.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if raw != nil {
		return string(raw), nil
	}
	id := uuid.NewString()
	if err := tx.Metadata.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// merge applies pulled records under the deterministic rules and advances
// the cursor, all in one transaction. A failure rolls everything back,
// cursor included, so the next cycle re-pulls the same page.
func (e *Engine) merge(ctx context.Context, changes *api.ChangesResponse) error {
	if len(changes.Records) == 0 && changes.Cursor == "" {
		return nil
	}
	return e.store.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		for i := range changes.Records {
			if err := e.applyRecord(ctx, tx, &changes.Records[i]); err != nil {
				return fmt.Errorf("apply %s: %w", changes.Records[i].ID, err)
			}
		}
		return tx.Metadata.Set(ctx, metadata.KeySyncCursor, []byte(changes.Cursor))
	})
}

func (e *Engine) applyRecord(ctx context.Context, tx *store.Tx, r *api.SyncRecord) error {
	local, err := tx.Entries.GetByID(ctx, r.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if r.Deleted {
			return nil // tombstone for a record this device never had
		}
		return e.insertRemote(ctx, tx, r)
	case err != nil:
		return err
	}

	if r.Deleted {
		return e.applyTombstone(ctx, tx, local, r)
	}

	switch {
	case r.Version > local.Version:
		// remote wins wholesale; unpushed local content is preserved first
		if local.Dirty {
			if err := e.captureShadow(ctx, tx, local, models.ShadowOriginLocal); err != nil {
				return err
			}
		}
		return e.overwriteWithRemote(ctx, tx, local, r)

	case r.Version < local.Version:
		return nil // local wins, stays dirty for re-push

	default:
		return e.applyTie(ctx, tx, local, r)
	}
}

// applyTie resolves an equal-version pair. Identical content means the two
// sides already agree and the local copy can go clean; otherwise the larger
// canonical hash wins and the loser becomes a shadow.
func (e *Engine) applyTie(ctx context.Context, tx *store.Tx, local *models.Entry, r *api.SyncRecord) error {
	localTags, err := tx.Tags.TagsFor(ctx, local.ID)
	if err != nil {
		return err
	}
	local.Tags = localTags

	localHash := local.ContentHash()
	remoteHash := r.ContentHash()
	if localHash == remoteHash {
		if local.Dirty {
			local.Dirty = false
			return tx.Entries.Upsert(ctx, local)
		}
		return nil
	}

	if remoteHash > localHash {
		if err := e.captureShadow(ctx, tx, local, models.ShadowOriginLocal); err != nil {
			return err
		}
		return e.overwriteWithRemote(ctx, tx, local, r)
	}

	// local wins; keep the remote content recoverable and re-push ours
	remoteEntry := models.EntryFromWire(r)
	if err := e.captureShadow(ctx, tx, remoteEntry, models.ShadowOriginRemote); err != nil {
		return err
	}
	if !local.Dirty {
		local.Dirty = true
		if err := tx.Entries.Upsert(ctx, local); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyTombstone(ctx context.Context, tx *store.Tx, local *models.Entry, r *api.SyncRecord) error {
	if local.Version <= r.Version {
		if local.Dirty && !local.Deleted {
			// unpushed edits die with the record unless preserved
			localTags, err := tx.Tags.TagsFor(ctx, local.ID)
			if err != nil {
				return err
			}
			local.Tags = localTags
			if err := e.captureShadow(ctx, tx, local, models.ShadowOriginLocal); err != nil {
				return err
			}
		}
		if err := tx.Tags.RemoveEntryRefs(ctx, local.ID); err != nil {
			return err
		}
		if err := tx.Entries.HardDelete(ctx, local.ID); err != nil {
			return err
		}
		tx.Notify(store.ChangeEvent{Origin: store.OriginMerge, Type: store.ChangeDeleted, EntryID: local.ID})
		return nil
	}

	// the local row outranks the tombstone: resurrect by re-pushing it
	if !local.Dirty {
		local.Dirty = true
		if err := tx.Entries.Upsert(ctx, local); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertRemote(ctx context.Context, tx *store.Tx, r *api.SyncRecord) error {
	entry := models.EntryFromWire(r)
	if err := tx.Entries.Upsert(ctx, entry); err != nil {
		return err
	}
	if err := tx.Tags.SetEntryTags(ctx, entry.ID, entry.Tags); err != nil {
		return err
	}
	tx.Notify(store.ChangeEvent{Origin: store.OriginMerge, Type: store.ChangeCreated, EntryID: entry.ID})
	return nil
}

func (e *Engine) overwriteWithRemote(ctx context.Context, tx *store.Tx, local *models.Entry, r *api.SyncRecord) error {
	entry := models.EntryFromWire(r)
	entry.CreatedAt = local.CreatedAt
	if err := tx.Entries.Upsert(ctx, entry); err != nil {
		return err
	}
	if err := tx.Tags.SetEntryTags(ctx, entry.ID, entry.Tags); err != nil {
		return err
	}
	tx.Notify(store.ChangeEvent{Origin: store.OriginMerge, Type: store.ChangeUpdated, EntryID: entry.ID})
	return nil
}

func (e *Engine) captureShadow(ctx context.Context, tx *store.Tx, entry *models.Entry, origin models.ShadowOrigin) error {
	sh := models.ShadowOf(entry, origin, e.now())
	sh.ID = uuid.NewString()
	if err := tx.Shadows.Insert(ctx, sh); err != nil {
		return err
	}
	tx.Notify(store.ChangeEvent{
		Origin:   store.OriginMerge,
		Type:     store.ChangeConflict,
		EntryID:  entry.ID,
		ShadowID: sh.ID,
	})
	return nil
}
