package domain

import (
	"errors"
	"fmt"
	"time"
)

// DayLayout names a calendar day in query strings.
const DayLayout = "2006-01-02"

var ErrMalformedSlot = errors.New("malformed slot timestamp")

// offset-less layouts are read as wall clock in the viewer location
var wallClockLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// Slot is an hour of practice time identified by its wall-clock fields in the
// viewer location. Two instants are the same slot iff they agree on year,
// month, day and hour there.
type Slot struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int
}

// SlotOf truncates t to its wall-clock hour in loc.
func SlotOf(t time.Time, loc *time.Location) Slot {
	if loc != nil {
		t = t.In(loc)
	}
	return Slot{Year: t.Year(), Month: t.Month(), Day: t.Day(), Hour: t.Hour()}
}

// ParseSlot reads a backend or client timestamp. Timestamps carrying an
// offset are converted into loc; offset-less ones already are wall clock.
func ParseSlot(raw string, loc *time.Location) (Slot, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return SlotOf(t, loc), nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return SlotOf(t, nil), nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %q", ErrMalformedSlot, raw)
}

// Time returns the start of the slot in loc.
func (s Slot) Time(loc *time.Location) time.Time {
	return time.Date(s.Year, s.Month, s.Day, s.Hour, 0, 0, 0, loc)
}

// String is the wire form: local wall clock, fixed :00:00, no offset.
func (s Slot) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:00:00", s.Year, int(s.Month), s.Day, s.Hour)
}

func (s Slot) Compare(o Slot) int {
	switch {
	case s.Year != o.Year:
		return cmpInt(s.Year, o.Year)
	case s.Month != o.Month:
		return cmpInt(int(s.Month), int(o.Month))
	case s.Day != o.Day:
		return cmpInt(s.Day, o.Day)
	default:
		return cmpInt(s.Hour, o.Hour)
	}
}

func (s Slot) Before(o Slot) bool { return s.Compare(o) < 0 }

// SameDay reports whether the slot falls on the calendar day of d.
func (s Slot) SameDay(d time.Time) bool {
	return s.Year == d.Year() && s.Month == d.Month() && s.Day == d.Day()
}

func (s Slot) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText reads the wire form. An offset, if present, is kept as written.
func (s *Slot) UnmarshalText(b []byte) error {
	v, err := ParseSlot(string(b), nil)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
