package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"weekplanner/internal/model"
)

const productID = "-//weekplanner//Weekly Planner//EN"

// floatingLayout writes DTSTART/DTEND without a zone; the planner has no
// notion of time zones.
const floatingLayout = "20060102T150405"

// Export renders events as an iCalendar document. A span whose end is not
// after its start is written with DTEND on the following day, the only
// reading a calendar client accepts.
func Export(events []model.Event, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		start, end := eventTimes(ev)

		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(floatingLayout))
		ve.SetProperty(ical.ComponentPropertyDtEnd, end.Format(floatingLayout))
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}
	return cal
}

// WriteTo serialises events to w.
func WriteTo(w io.Writer, events []model.Event, stamp time.Time) error {
	_, err := io.WriteString(w, Export(events, stamp).Serialize())
	return err
}

func eventTimes(ev model.Event) (time.Time, time.Time) {
	midnight := time.Date(ev.Date.Year, ev.Date.Month, ev.Date.Day, 0, 0, 0, 0, time.UTC)
	start := midnight.Add(time.Duration(ev.Start.Minutes()) * time.Minute)
	end := midnight.Add(time.Duration(ev.End.Minutes()) * time.Minute)
	if ev.DurationMinutes() <= 0 {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}
