// Package domain contains scheduling values without I/O, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxNicknameLen = 36

var (
	ErrNicknameTooLong = errors.New("nickname too long")
	ErrNicknameEmpty   = errors.New("nickname empty")
)

// Nickname is the unique display name identifying a participant.
type Nickname string

func NewNickname(raw string) (Nickname, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrNicknameEmpty
	}
	if len(raw) > MaxNicknameLen {
		return "", ErrNicknameTooLong
	}
	return Nickname(raw), nil
}

// Roster is the de-duplicated, ordered set of a room's participants.
type Roster []Nickname

// NewRoster keeps the first occurrence of every non-empty nickname.
func NewRoster(nicks ...Nickname) Roster {
	seen := make(map[Nickname]struct{}, len(nicks))
	out := make(Roster, 0, len(nicks))
	for _, n := range nicks {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (r Roster) Size() int { return len(r) }

func (r Roster) Contains(n Nickname) bool {
	for _, m := range r {
		if m == n {
			return true
		}
	}
	return false
}
