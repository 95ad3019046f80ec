package core

import (
	"maps"
	"slices"

	"github.com/dkeye/Jam/internal/domain"
)

// Selection is the viewer's pending, unsaved choice of available slots.
// Values are immutable: Toggle returns a new Selection.
type Selection struct {
	slots map[domain.Slot]struct{}
}

// InitializeFrom selects exactly the slots whose voters include who.
func InitializeFrom(s Snapshot, who domain.Nickname) Selection {
	out := make(map[domain.Slot]struct{})
	for slot, vs := range s.votes {
		if _, ok := vs.index[who]; ok {
			out[slot] = struct{}{}
		}
	}
	return Selection{slots: out}
}

// NewSelection selects the given slots.
func NewSelection(slots ...domain.Slot) Selection {
	out := make(map[domain.Slot]struct{}, len(slots))
	for _, s := range slots {
		out[s] = struct{}{}
	}
	return Selection{slots: out}
}

// Toggle adds slot if absent and removes it if present.
func (s Selection) Toggle(slot domain.Slot) Selection {
	next := make(map[domain.Slot]struct{}, len(s.slots)+1)
	maps.Copy(next, s.slots)
	if _, ok := next[slot]; ok {
		delete(next, slot)
	} else {
		next[slot] = struct{}{}
	}
	return Selection{slots: next}
}

func (s Selection) Contains(slot domain.Slot) bool {
	_, ok := s.slots[slot]
	return ok
}

func (s Selection) Len() int { return len(s.slots) }

// Slots returns the selected slots in chronological order.
func (s Selection) Slots() []domain.Slot {
	out := make([]domain.Slot, 0, len(s.slots))
	for slot := range s.slots {
		out = append(out, slot)
	}
	slices.SortFunc(out, domain.Slot.Compare)
	return out
}

func (s Selection) Equal(o Selection) bool {
	if len(s.slots) != len(o.slots) {
		return false
	}
	for slot := range s.slots {
		if _, ok := o.slots[slot]; !ok {
			return false
		}
	}
	return true
}
