// Package week turns "today" and a week offset into the Sunday-first dates
// of the selected week, and produces the labels shown around the grid.
package week

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/teambition/rrule-go"

	"weekplanner/internal/model"
)

const (
	DaysPerWeek = 7

	DefaultPast   = 13
	DefaultFuture = 12
)

// DayNames are the column headings, Sunday first.
var DayNames = [DaysPerWeek]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Option is one entry in the week selector.
type Option struct {
	Offset int        `json:"offset"`
	Start  civil.Date `json:"start"`
	End    civil.Date `json:"end"`
	Label  string     `json:"label"`
}

// Weekday returns the day index of d, Sunday = 0.
func Weekday(d civil.Date) int {
	return int(d.In(time.UTC).Weekday())
}

// Dates returns the seven dates of the week offset weeks away from the week
// containing today, starting on Sunday.
func Dates(today civil.Date, offset int) [DaysPerWeek]civil.Date {
	var out [DaysPerWeek]civil.Date
	sunday := today.AddDays(-Weekday(today) + offset*DaysPerWeek)
	for i := range out {
		out[i] = sunday.AddDays(i)
	}
	return out
}

// Options lists the selectable weeks from past weeks back to future weeks
// ahead of today's week, inclusive.
func Options(today civil.Date, past, future int) ([]Option, error) {
	if past < 0 || future < 0 {
		return nil, fmt.Errorf("week options: negative range past=%d future=%d", past, future)
	}
	first := Dates(today, -past)[0]

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: first.In(time.UTC),
		Count:   past + future + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("week options: building rule: %w", err)
	}

	sundays := r.All()
	opts := make([]Option, 0, len(sundays))
	for i, t := range sundays {
		start := civil.DateOf(t)
		end := start.AddDays(DaysPerWeek - 1)
		opts = append(opts, Option{
			Offset: i - past,
			Start:  start,
			End:    end,
			Label:  RangeLabel(start, end),
		})
	}
	return opts, nil
}

// RangeLabel renders "Oct 11 - Oct 17, 2026".
func RangeLabel(start, end civil.Date) string {
	return start.In(time.UTC).Format("Jan 2") + " - " + end.In(time.UTC).Format("Jan 2, 2006")
}

// ShortLabel renders the column date as "M/D".
func ShortLabel(d civil.Date) string {
	return fmt.Sprintf("%d/%d", int(d.Month), d.Day)
}

// HourLabels returns the 24 row labels, "12:00 AM" through "11:00 PM".
func HourLabels() []string {
	out := make([]string, 0, 24)
	for h := 0; h < 24; h++ {
		out = append(out, Format12Hour(model.MustTimeOfDay(h, 0)))
	}
	return out
}

// Format12Hour renders t as "9:05 AM" / "12:30 PM".
func Format12Hour(t model.TimeOfDay) string {
	period := "AM"
	if t.Hour() >= 12 {
		period = "PM"
	}
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, t.Minute(), period)
}
