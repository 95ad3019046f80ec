package core

import (
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Jam/internal/domain"
)

// voterSet keeps arrival order for display and a set for lookups.
type voterSet struct {
	order []domain.Nickname
	index map[domain.Nickname]struct{}
}

func (v *voterSet) add(n domain.Nickname) {
	if _, ok := v.index[n]; ok {
		return
	}
	v.index[n] = struct{}{}
	v.order = append(v.order, n)
}

// Snapshot maps each slot to the participants available then.
// It is never mutated after construction; refreshes replace it wholesale.
type Snapshot struct {
	votes map[domain.Slot]*voterSet
}

// NewSnapshot builds a snapshot from the backend payload. A single unparseable
// timestamp fails the whole payload. Entries that normalize to the same slot
// are merged, and repeated voters are kept once.
func NewSnapshot(entries []SlotVotes, loc *time.Location) (Snapshot, error) {
	votes := make(map[domain.Slot]*voterSet, len(entries))
	for i, e := range entries {
		slot, err := domain.ParseSlot(e.Time, loc)
		if err != nil {
			return Snapshot{}, fmt.Errorf("availability entry %d: %w", i, err)
		}
		vs, ok := votes[slot]
		if !ok {
			vs = &voterSet{index: make(map[domain.Nickname]struct{}, len(e.Voters))}
			votes[slot] = vs
		}
		for _, v := range e.Voters {
			if v.Nickname == "" {
				continue
			}
			vs.add(v.Nickname)
		}
	}
	return Snapshot{votes: votes}, nil
}

// Len returns the number of slots with at least one entry.
func (s Snapshot) Len() int { return len(s.votes) }

// Slots returns every slot in chronological order.
func (s Snapshot) Slots() []domain.Slot {
	out := make([]domain.Slot, 0, len(s.votes))
	for slot := range s.votes {
		out = append(out, slot)
	}
	slices.SortFunc(out, domain.Slot.Compare)
	return out
}

func (s Snapshot) Count(slot domain.Slot) int {
	if vs, ok := s.votes[slot]; ok {
		return len(vs.order)
	}
	return 0
}

// Voters returns a copy of the slot's voters in the order the backend sent them.
func (s Snapshot) Voters(slot domain.Slot) []domain.Nickname {
	vs, ok := s.votes[slot]
	if !ok {
		return nil
	}
	return slices.Clone(vs.order)
}

func (s Snapshot) HasVoter(slot domain.Slot, n domain.Nickname) bool {
	vs, ok := s.votes[slot]
	if !ok {
		return false
	}
	_, ok = vs.index[n]
	return ok
}

// Voted reports whether n appears in any slot.
func (s Snapshot) Voted(n domain.Nickname) bool {
	for _, vs := range s.votes {
		if _, ok := vs.index[n]; ok {
			return true
		}
	}
	return false
}
