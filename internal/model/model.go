package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

const (
	MinutesPerHour = 60
	MinutesPerDay  = 24 * MinutesPerHour
)

// ErrMalformedTime is returned when a string is not a 24-hour HH:MM value.
var ErrMalformedTime = errors.New("malformed time of day")

// TimeOfDay is a wall-clock time with minute resolution, stored as minutes
// since midnight in [0, 1440).
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d out of range", ErrMalformedTime, hour, minute)
	}
	return TimeOfDay(hour*MinutesPerHour + minute), nil
}

// MustTimeOfDay is NewTimeOfDay for constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses "HH:MM" (24-hour). A single-digit hour is accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q missing colon", ErrMalformedTime, s)
	}
	if len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q non-numeric hour", ErrMalformedTime, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q non-numeric minute", ErrMalformedTime, s)
	}
	return NewTimeOfDay(h, m)
}

func (t TimeOfDay) Hour() int   { return int(t) / MinutesPerHour }
func (t TimeOfDay) Minute() int { return int(t) % MinutesPerHour }

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Event is a single planner entry on one calendar day. The JSON shape matches
// the flat event list persisted by the browser planner.
//
// Start < End is not enforced here; callers decide how to treat reversed or
// empty spans.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Date        civil.Date `json:"date"`
	Start       TimeOfDay  `json:"startTime"`
	End         TimeOfDay  `json:"endTime"`
}

// DurationMinutes is End - Start; zero or negative for reversed spans.
func (e Event) DurationMinutes() int {
	return e.End.Minutes() - e.Start.Minutes()
}

// OnDate returns the events dated d, preserving input order.
func OnDate(events []Event, d civil.Date) []Event {
	out := make([]Event, 0)
	for _, ev := range events {
		if ev.Date == d {
			out = append(out, ev)
		}
	}
	return out
}
