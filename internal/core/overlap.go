package core

import "github.com/dkeye/Jam/internal/domain"

// PerfectSlots returns, in chronological order, the slots whose voter count
// equals the roster size. A roster of fewer than two has no consensus to find.
func PerfectSlots(s Snapshot, roster domain.Roster) []domain.Slot {
	if roster.Size() < 2 {
		return []domain.Slot{}
	}
	out := []domain.Slot{}
	for _, slot := range s.Slots() {
		if s.Count(slot) == roster.Size() {
			out = append(out, slot)
		}
	}
	return out
}

// PendingParticipants returns, in roster order, members who voted for no slot.
func PendingParticipants(s Snapshot, roster domain.Roster) []domain.Nickname {
	voted := make(map[domain.Nickname]struct{})
	for _, vs := range s.votes {
		for n := range vs.index {
			voted[n] = struct{}{}
		}
	}
	out := []domain.Nickname{}
	for _, n := range roster {
		if _, ok := voted[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
