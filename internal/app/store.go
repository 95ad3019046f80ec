package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSaveFailed = errors.New("saving availability failed")
	// ErrStaleAfterSave means the write succeeded but the follow-up refresh did not.
	ErrStaleAfterSave = errors.New("availability saved but refresh failed")
)

// AvailabilityStore holds the latest applied availability snapshot of one room.
type AvailabilityStore struct {
	backend core.Backend
	room    domain.RoomID
	loc     *time.Location
	policy  Policy

	issued atomic.Uint64

	mu        sync.RWMutex
	snapshot  core.Snapshot
	applied   uint64
	fetchedAt time.Time
}

func NewAvailabilityStore(backend core.Backend, room domain.RoomID, loc *time.Location, policy Policy) *AvailabilityStore {
	if policy == nil {
		policy = StrictOrder{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &AvailabilityStore{backend: backend, room: room, loc: loc, policy: policy}
}

func (s *AvailabilityStore) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// FetchedAt is the completion time of the applied snapshot; zero before the first.
func (s *AvailabilityStore) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

func (s *AvailabilityStore) Location() *time.Location { return s.loc }

// Refresh fetches the room's availability and replaces the snapshot when the
// policy accepts the response. On error the previous snapshot stays in place.
// The returned snapshot is whatever is current after the call.
func (s *AvailabilityStore) Refresh(ctx context.Context) (core.Snapshot, error) {
	seq := s.issued.Add(1)

	entries, err := s.backend.FetchAvailability(ctx, s.room)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.store").Str("room", string(s.room)).Uint64("seq", seq).Msg("refresh failed")
		return s.Snapshot(), fmt.Errorf("fetch availability: %w", err)
	}
	snap, err := core.NewSnapshot(entries, s.loc)
	if err != nil {
		log.Error().Err(err).Str("module", "app.store").Str("room", string(s.room)).Uint64("seq", seq).Msg("rejected availability payload")
		return s.Snapshot(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.Accept(seq, s.applied) {
		log.Debug().Str("module", "app.store").Str("room", string(s.room)).Uint64("seq", seq).Uint64("applied", s.applied).Msg("discarded stale response")
		return s.snapshot, nil
	}
	s.snapshot = snap
	s.applied = seq
	s.fetchedAt = time.Now()
	log.Debug().Str("module", "app.store").Str("room", string(s.room)).Uint64("seq", seq).Int("slots", snap.Len()).Msg("snapshot applied")
	return snap, nil
}

// Commit writes the full selection for nick and then refreshes. A failed write
// leaves the snapshot untouched and wraps ErrSaveFailed.
func (s *AvailabilityStore) Commit(ctx context.Context, nick domain.Nickname, sel core.Selection) (core.Snapshot, error) {
	if err := s.backend.SaveAvailability(ctx, s.room, nick, sel.Slots()); err != nil {
		log.Warn().Err(err).Str("module", "app.store").Str("room", string(s.room)).Str("nickname", string(nick)).Msg("commit failed")
		return s.Snapshot(), fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	log.Info().Str("module", "app.store").Str("room", string(s.room)).Str("nickname", string(nick)).Int("slots", sel.Len()).Msg("availability committed")

	snap, err := s.Refresh(ctx)
	if err != nil {
		return snap, fmt.Errorf("%w: %w", ErrStaleAfterSave, err)
	}
	return snap, nil
}
