package entries

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
)

// Service applies pushed batches and serves the changes feed. It runs the
// same version-then-hash comparison clients use for merging, so both sides
// converge on identical winners without negotiation.
type Service struct {
	repo Repository
	log  logging.Logger
}

func NewService(repo Repository, log logging.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Push stores each record that wins against the stored copy and reports the
// accepted ids plus the user's new cursor. Pushing the same batch twice is
// idempotent: records identical to the stored copy are acknowledged without
// a new server_seq.
func (s *Service) Push(ctx context.Context, userID string, records []api.SyncRecord) (*api.PushResponse, error) {
	var accepted []string
	for i := range records {
		rec := &records[i]
		ok, err := s.apply(ctx, userID, rec)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", rec.ID, err)
		}
		if ok {
			accepted = append(accepted, rec.ID)
		}
	}

	maxSeq, err := s.repo.MaxSeq(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &api.PushResponse{Accepted: accepted, Cursor: formatCursor(maxSeq)}, nil
}

func (s *Service) apply(ctx context.Context, userID string, rec *api.SyncRecord) (bool, error) {
	stored, err := s.repo.Get(ctx, userID, rec.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		_, err := s.repo.Upsert(ctx, FromWire(userID, rec))
		return err == nil, err
	case err != nil:
		return false, err
	}

	switch {
	case rec.Version > stored.Version:
		_, err := s.repo.Upsert(ctx, FromWire(userID, rec))
		return err == nil, err

	case rec.Version < stored.Version:
		return false, nil

	default:
		recHash := rec.ContentHash()
		storedHash := stored.ContentHash()
		if recHash == storedHash {
			// replayed push; already stored, nothing to reassign
			return true, nil
		}
		if recHash > storedHash {
			_, err := s.repo.Upsert(ctx, FromWire(userID, rec))
			return err == nil, err
		}
		return false, nil
	}
}

// Changes returns the user's records with server_seq beyond the cursor,
// tombstones included, plus the cursor to request next.
func (s *Service) Changes(ctx context.Context, userID, since string) (*api.ChangesResponse, error) {
	sinceSeq, err := parseCursor(since)
	if err != nil {
		return nil, fmt.Errorf("bad cursor %q: %w", since, common.ErrValidation)
	}

	rows, err := s.repo.ListSince(ctx, userID, sinceSeq, 0)
	if err != nil {
		return nil, err
	}

	cursor := sinceSeq
	records := make([]api.SyncRecord, 0, len(rows))
	for _, e := range rows {
		records = append(records, e.ToWire())
		if e.ServerSeq > cursor {
			cursor = e.ServerSeq
		}
	}
	return &api.ChangesResponse{Records: records, Cursor: formatCursor(cursor)}, nil
}

func parseCursor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func formatCursor(seq int64) string {
	return strconv.FormatInt(seq, 10)
}
