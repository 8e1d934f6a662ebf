package entries

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
)

type memRepo struct {
	rows map[string]map[string]*Entry // userID -> id -> entry
	seq  int64
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]map[string]*Entry{}}
}

func (m *memRepo) Get(ctx context.Context, userID, id string) (*Entry, error) {
	if e, ok := m.rows[userID][id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, common.ErrNotFound
}

func (m *memRepo) Upsert(ctx context.Context, e *Entry) (int64, error) {
	m.seq++
	e.ServerSeq = m.seq
	if m.rows[e.UserID] == nil {
		m.rows[e.UserID] = map[string]*Entry{}
	}
	copied := *e
	m.rows[e.UserID][e.ID] = &copied
	return m.seq, nil
}

func (m *memRepo) ListSince(ctx context.Context, userID string, since int64, limit int) ([]*Entry, error) {
	var result []*Entry
	for _, e := range m.rows[userID] {
		if e.ServerSeq > since {
			copied := *e
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memRepo) MaxSeq(ctx context.Context, userID string) (int64, error) {
	var max int64
	for _, e := range m.rows[userID] {
		if e.ServerSeq > max {
			max = e.ServerSeq
		}
	}
	return max, nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewService(repo, log), repo
}

func rec(id, title string, body []byte, version int64) api.SyncRecord {
	return api.SyncRecord{ID: id, Title: title, BodyFormat: "plain", EncryptedBody: body, Version: version, KeyID: "k1"}
}

func TestPushAcceptsNewAndNewerRecords(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	resp, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "v1", []byte{1}, 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, resp.Accepted)
	assert.Equal(t, "1", resp.Cursor)

	resp, err = svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "v2", []byte{2}, 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, resp.Accepted)
	assert.Equal(t, "2", resp.Cursor)
}

func TestPushRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "new", []byte{1}, 5)})
	require.NoError(t, err)

	resp, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "old", []byte{2}, 3)})
	require.NoError(t, err)
	assert.Empty(t, resp.Accepted)

	changes, err := svc.Changes(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, changes.Records, 1)
	assert.Equal(t, "new", changes.Records[0].Title)
}

func TestPushIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	batch := []api.SyncRecord{rec("e1", "t", []byte{1}, 1), rec("e2", "t", []byte{2}, 1)}

	first, err := svc.Push(ctx, "u1", batch)
	require.NoError(t, err)
	second, err := svc.Push(ctx, "u1", batch)
	require.NoError(t, err)

	// the replay acknowledges the same ids without assigning new seqs
	assert.ElementsMatch(t, first.Accepted, second.Accepted)
	assert.Equal(t, first.Cursor, second.Cursor)
}

func TestPushPreservesAbsentSentiment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	// sentiment is optional; the common case carries none
	_, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "no mood", []byte{1}, 1)})
	require.NoError(t, err)

	stored, err := repo.Get(ctx, "u1", "e1")
	require.NoError(t, err)
	assert.Nil(t, stored.Sentiment)

	changes, err := svc.Changes(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, changes.Records, 1)
	assert.Nil(t, changes.Records[0].Sentiment)

	// absent and zero sentiment are distinct content: coercing nil to 0
	// would change the hash and break same-version tie-breaks
	zero := 0.0
	withZero := rec("e1", "no mood", []byte{1}, 1)
	withZero.Sentiment = &zero
	assert.NotEqual(t, changes.Records[0].ContentHash(), withZero.ContentHash())
}

func TestPushEqualVersionTieBreak(t *testing.T) {
	ctx := context.Background()

	a := rec("e1", "variant a", []byte{1}, 3)
	b := rec("e1", "variant b", []byte{2}, 3)

	winner := a
	if b.ContentHash() > a.ContentHash() {
		winner = b
	}

	// apply the two variants in both orders; the stored winner must match
	for _, order := range [][]api.SyncRecord{{a, b}, {b, a}} {
		svc, _ := newTestService()
		for _, r := range order {
			_, err := svc.Push(ctx, "u1", []api.SyncRecord{r})
			require.NoError(t, err)
		}
		changes, err := svc.Changes(ctx, "u1", "")
		require.NoError(t, err)
		require.Len(t, changes.Records, 1)
		assert.Equal(t, winner.Title, changes.Records[0].Title)
	}
}

func TestChangesCursorPaging(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "a", []byte{1}, 1)})
	require.NoError(t, err)

	changes, err := svc.Changes(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, changes.Records, 1)
	cursor := changes.Cursor

	// no new writes: the feed is empty and the cursor stands still
	changes, err = svc.Changes(ctx, "u1", cursor)
	require.NoError(t, err)
	assert.Empty(t, changes.Records)
	assert.Equal(t, cursor, changes.Cursor)

	_, err = svc.Push(ctx, "u1", []api.SyncRecord{rec("e2", "b", []byte{2}, 1)})
	require.NoError(t, err)

	changes, err = svc.Changes(ctx, "u1", cursor)
	require.NoError(t, err)
	require.Len(t, changes.Records, 1)
	assert.Equal(t, "e2", changes.Records[0].ID)
}

func TestChangesRejectsBadCursor(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Changes(ctx, "u1", "not-a-number")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Push(ctx, "u1", []api.SyncRecord{rec("e1", "private", []byte{1}, 1)})
	require.NoError(t, err)

	changes, err := svc.Changes(ctx, "u2", "")
	require.NoError(t, err)
	assert.Empty(t, changes.Records)
}
