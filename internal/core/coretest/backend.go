// Package coretest provides an in-memory core.Backend for tests.
package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Jam/internal/core"
	"github.com/dkeye/Jam/internal/domain"
)

var ErrUnavailable = errors.New("backend unavailable")

// Backend serves one room and its availability from memory. Saves rewrite the
// stored votes so a following fetch observes them.
type Backend struct {
	mu sync.Mutex

	Room  domain.Room
	Votes []core.SlotVotes

	RoomErr  error
	FetchErr error
	SaveErr  error

	// Fetch, when set, replaces the stored votes for FetchAvailability.
	// call counts from 1.
	Fetch func(ctx context.Context, call int) ([]core.SlotVotes, error)

	FetchCalls int
	SaveCalls  int
	LastSaved  []domain.Slot
}

func (b *Backend) FetchRoom(_ context.Context, _ domain.RoomID) (*domain.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.RoomErr != nil {
		return nil, b.RoomErr
	}
	room := b.Room
	room.Sessions = append([]domain.Session(nil), b.Room.Sessions...)
	return &room, nil
}

func (b *Backend) FetchAvailability(ctx context.Context, _ domain.RoomID) ([]core.SlotVotes, error) {
	b.mu.Lock()
	b.FetchCalls++
	call, fetch := b.FetchCalls, b.Fetch
	if fetch == nil {
		defer b.mu.Unlock()
		if b.FetchErr != nil {
			return nil, b.FetchErr
		}
		return cloneVotes(b.Votes), nil
	}
	b.mu.Unlock()
	return fetch(ctx, call)
}

func (b *Backend) SaveAvailability(_ context.Context, _ domain.RoomID, nick domain.Nickname, slots []domain.Slot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SaveCalls++
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.LastSaved = append([]domain.Slot(nil), slots...)

	byTime := make(map[string]int, len(b.Votes))
	kept := make([]core.SlotVotes, 0, len(b.Votes))
	for _, sv := range b.Votes {
		voters := make([]core.Voter, 0, len(sv.Voters))
		for _, v := range sv.Voters {
			if v.Nickname != nick {
				voters = append(voters, v)
			}
		}
		if len(voters) == 0 {
			continue
		}
		byTime[sv.Time] = len(kept)
		kept = append(kept, core.SlotVotes{Time: sv.Time, Voters: voters})
	}
	for _, s := range slots {
		t := s.String()
		if i, ok := byTime[t]; ok {
			kept[i].Voters = append(kept[i].Voters, core.Voter{Nickname: nick})
			continue
		}
		byTime[t] = len(kept)
		kept = append(kept, core.SlotVotes{Time: t, Voters: []core.Voter{{Nickname: nick}}})
	}
	b.Votes = kept
	return nil
}

// Set swaps a field under the backend lock.
func (b *Backend) Set(fn func(b *Backend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// Vote builds a wire entry.
func Vote(at string, nicks ...domain.Nickname) core.SlotVotes {
	sv := core.SlotVotes{Time: at, Voters: make([]core.Voter, 0, len(nicks))}
	for _, n := range nicks {
		sv.Voters = append(sv.Voters, core.Voter{Nickname: n})
	}
	return sv
}

// BandRoom is a confirmed room managed by "dana" with "ari" and "kim" seated.
func BandRoom() domain.Room {
	return domain.Room{
		ID:        1,
		Title:     "Friday jam",
		Manager:   "dana",
		Confirmed: true,
		Sessions: []domain.Session{
			{Name: "vocal", Participant: "ari"},
			{Name: "guitar"},
			{Name: "drums", Participant: "kim"},
		},
	}
}

func cloneVotes(in []core.SlotVotes) []core.SlotVotes {
	out := make([]core.SlotVotes, len(in))
	for i, sv := range in {
		out[i] = core.SlotVotes{Time: sv.Time, Voters: append([]core.Voter(nil), sv.Voters...)}
	}
	return out
}
