// Package grid places one day's events on a fixed 24-hour grid of
// 15-minute slots. Everything here is a pure function of its input.
package grid

import (
	"weekplanner/internal/model"
)

const (
	HoursPerDay    = 24
	SlotMinutes    = 15
	SlotsPerHour   = model.MinutesPerHour / SlotMinutes
	SlotsPerDay    = HoursPerDay * SlotsPerHour
	PixelsPerHour  = 60.0
	PixelsPerSlot  = PixelsPerHour / SlotsPerHour
	minutesPerHour = float64(model.MinutesPerHour)
)

// Occupancy records, per 15-minute slot, whether any event covers the
// slot's start minute.
type Occupancy [SlotsPerDay]bool

// Block is the rendering instruction for one event inside the hour row in
// which it starts.
type Block struct {
	Event model.Event `json:"event"`

	// Hour is the row (0-23) the block is anchored to.
	Hour int `json:"hour"`

	DurationHours float64 `json:"durationHours"`
	TopPx         float64 `json:"topPx"`
	HeightPx      float64 `json:"heightPx"`

	// Lane and Lanes are 0 and 1 unless AssignLanes was applied.
	Lane  int `json:"lane"`
	Lanes int `json:"lanes"`
}

// DayLayout is the result of a layout pass for a single day.
type DayLayout struct {
	Blocks    []Block   `json:"blocks"`
	Occupancy Occupancy `json:"occupancy"`
}

// LayoutDay computes blocks and occupancy for the events of one day.
//
// Durations are the raw end-start difference: a span with end <= start gives
// a zero or negative height. Blocks come out grouped by start hour, and in
// input order within an hour. Overlapping events are not separated.
func LayoutDay(events []model.Event) DayLayout {
	var out DayLayout

	var byHour [HoursPerDay][]Block
	for _, ev := range events {
		b := place(ev)
		byHour[b.Hour] = append(byHour[b.Hour], b)
		markOccupied(&out.Occupancy, ev.Start.Minutes(), ev.End.Minutes())
	}

	out.Blocks = make([]Block, 0, len(events))
	for h := range byHour {
		out.Blocks = append(out.Blocks, byHour[h]...)
	}
	return out
}

func place(ev model.Event) Block {
	start := ev.Start.Minutes()
	end := ev.End.Minutes()
	durationHours := float64(end-start) / minutesPerHour

	return Block{
		Event:         ev,
		Hour:          ev.Start.Hour(),
		DurationHours: durationHours,
		HeightPx:      durationHours * PixelsPerHour,
		TopPx:         float64(ev.Start.Minute()) / minutesPerHour * PixelsPerHour,
		Lanes:         1,
	}
}

func markOccupied(occ *Occupancy, start, end int) {
	for i := range occ {
		m := i * SlotMinutes
		if m >= start && m < end {
			occ[i] = true
		}
	}
}

// SlotStart returns the time of day at which slot i begins.
func SlotStart(i int) model.TimeOfDay {
	return model.TimeOfDay(i * SlotMinutes)
}

// Count returns the number of occupied slots.
func (o Occupancy) Count() int {
	n := 0
	for _, busy := range o {
		if busy {
			n++
		}
	}
	return n
}

// Span is a half-open [Start, End) range of minutes within a day. End may be
// 1440 for a span running to midnight.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FreeSpans returns maximal runs of free slots as minute ranges.
func (o Occupancy) FreeSpans() []Span {
	return o.runs(false)
}

// BusySpans returns maximal runs of occupied slots as minute ranges.
func (o Occupancy) BusySpans() []Span {
	return o.runs(true)
}

func (o Occupancy) runs(want bool) []Span {
	spans := make([]Span, 0)
	start := -1
	for i, busy := range o {
		if busy == want {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, Span{Start: start * SlotMinutes, End: i * SlotMinutes})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start * SlotMinutes, End: SlotsPerDay * SlotMinutes})
	}
	return spans
}
