package domain

import "errors"

var (
	ErrNotParticipant   = errors.New("viewer is not a participant of the room")
	ErrRoomNotConfirmed = errors.New("room is not confirmed yet")
	ErrRoomEnded        = errors.New("room has ended")
)

type RoomID string

// Session is a named instrument seat holding at most one participant.
type Session struct {
	Name        string   `json:"session_name"`
	Participant Nickname `json:"participant_nickname"`
}

// Room is the descriptor served by the backend for GET /rooms/{id}.
type Room struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Song        string    `json:"song"`
	Artist      string    `json:"artist"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"is_private"`
	Manager     Nickname  `json:"manager_nickname"`
	Confirmed   bool      `json:"confirmed"`
	Ended       bool      `json:"ended"`
	Sessions    []Session `json:"sessions"`
}

// Roster lists every seated participant in session order followed by the manager.
func (r *Room) Roster() Roster {
	nicks := make([]Nickname, 0, len(r.Sessions)+1)
	for _, s := range r.Sessions {
		nicks = append(nicks, s.Participant)
	}
	nicks = append(nicks, r.Manager)
	return NewRoster(nicks...)
}

// CanSchedule reports whether nick may vote on the room's practice slots.
func (r *Room) CanSchedule(nick Nickname) error {
	if !r.Roster().Contains(nick) {
		return ErrNotParticipant
	}
	if r.Ended {
		return ErrRoomEnded
	}
	if !r.Confirmed {
		return ErrRoomNotConfirmed
	}
	return nil
}
