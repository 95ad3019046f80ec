package core

import (
	"context"

	"github.com/dkeye/Jam/internal/domain"
)

// Voter is one entry of a slot's voter list on the wire.
type Voter struct {
	Nickname domain.Nickname `json:"nickname"`
}

// SlotVotes is one element of GET /rooms/{id}/availability.
type SlotVotes struct {
	Time   string  `json:"time"`
	Voters []Voter `json:"voters"`
}

// Backend abstracts the remote REST service.
// Implementations must be safe for concurrent use.
type Backend interface {
	FetchRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	FetchAvailability(ctx context.Context, id domain.RoomID) ([]SlotVotes, error)
	// SaveAvailability replaces every slot nick marked available in the room.
	SaveAvailability(ctx context.Context, id domain.RoomID, nick domain.Nickname, slots []domain.Slot) error
}
