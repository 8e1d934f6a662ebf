// Package store implements the Local Store: durable, transactional SQLite
// persistence of entries, tags, shadows and device metadata, with a change
// notification stream consumed by the Entry Service and the Sync Engine.
//
// Mutations are serialized (single-writer transaction discipline): no two
// mutating transactions are in flight at once against the same Store. Reads
// run against the committed state and never queue behind writers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/quietlog/quietlog/internal/client/migrations"
	"github.com/quietlog/quietlog/internal/client/repositories/entries"
	"github.com/quietlog/quietlog/internal/client/repositories/metadata"
	"github.com/quietlog/quietlog/internal/client/repositories/shadows"
	"github.com/quietlog/quietlog/internal/client/repositories/tags"
	"github.com/quietlog/quietlog/internal/dbx"
	"github.com/quietlog/quietlog/internal/logging"

	_ "modernc.org/sqlite"
)

// Origin says which side produced a change.
type Origin string

const (
	// OriginLocal marks changes made through the Entry Service on this
	// device.
	OriginLocal Origin = "local"
	// OriginMerge marks changes applied by the Sync Engine from remote
	// state.
	OriginMerge Origin = "merge"
)

// ChangeType classifies a change event.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeUpdated  ChangeType = "updated"
	ChangeDeleted  ChangeType = "deleted"
	ChangeConflict ChangeType = "conflict"
)

// ChangeEvent is published after a transaction commits. Conflict events
// carry the shadow id of the preserved losing content.
type ChangeEvent struct {
	Origin   Origin
	Type     ChangeType
	EntryID  string
	ShadowID string
}

// Tx bundles the repositories bound to one transaction plus the events to
// publish if it commits.
type Tx struct {
	Entries  entries.Repository
	Tags     tags.Repository
	Metadata metadata.Repository
	Shadows  shadows.Repository

	events []ChangeEvent
}

// Notify queues an event for publication after a successful commit. Events
// queued in a rolled-back transaction are discarded.
func (t *Tx) Notify(ev ChangeEvent) {
	t.events = append(t.events, ev)
}

func newTx(db dbx.DBTX) *Tx {
	return &Tx{
		Entries:  entries.NewSQLiteRepository(db),
		Tags:     tags.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		Shadows:  shadows.NewSQLiteRepository(db),
	}
}

// Store is the Local Store façade.
type Store struct {
	db  *sql.DB
	log logging.Logger

	// writeMu enforces the single-writer discipline.
	writeMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan ChangeEvent
	nextSub int
}

// Open opens (creating if necessary) the SQLite database at path and applies
// pending migrations. File-backed databases run in WAL mode with a small
// connection pool, so readers see a committed snapshot while a writer holds
// its transaction. An in-memory database keeps a single connection: each
// connection would otherwise get its own empty database.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	memory := strings.Contains(path, ":memory:")
	dsn := path
	if !memory {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		// one writer at a time (enforced by writeMu), the rest for readers
		db.SetMaxOpenConns(4)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, log: log, subs: make(map[int]chan ChangeEvent)}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside one atomic transaction, serialized against all other
// mutations. On commit, events queued via Tx.Notify are published to
// subscribers; on error nothing is visible and nothing is published.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var events []ChangeEvent
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dbtx dbx.DBTX) error {
		tx := newTx(dbtx)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events)
	return nil
}

// View runs fn against committed state. Readers do not take the writer lock.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return fn(ctx, newTx(s.db))
}

// Subscribe registers a change listener with the given buffer size. The
// returned cancel func must be called to release the subscription. Events
// are delivered best-effort: a full subscriber buffer drops the event rather
// than blocking a committer.
func (s *Store) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan ChangeEvent, buffer)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) publish(ctx context.Context, events []ChangeEvent) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ev := range events {
		for id, ch := range s.subs {
			select {
			case ch <- ev:
			default:
				s.log.Debug(ctx, "dropping change event for slow subscriber",
					"subscriber", id, "entry_id", ev.EntryID, "type", string(ev.Type))
			}
		}
	}
}
