package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	ical "github.com/arran4/golang-ical"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

// ErrUnsupported marks VEVENTs the planner cannot represent (all-day,
// recurring or multi-day). They are skipped, not fatal.
var ErrUnsupported = errors.New("unsupported event")

// Parse reads an iCalendar payload into planner events. The event's date
// and clock times are taken from DTSTART/DTEND as written, with no zone
// conversion. VEVENTs that fail to convert are logged, skipped, and
// returned in the second value.
func Parse(body []byte) ([]model.Event, []error, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, nil, fmt.Errorf("parsing calendar: %w", err)
	}

	events := make([]model.Event, 0)
	var skipped []error
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "reason", perr.Error())
			skipped = append(skipped, perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events), "skipped", len(skipped))
	return events, skipped, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.ID = strings.TrimSpace(uidProp.Value)

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
		return out, fmt.Errorf("%w: %s is recurring", ErrUnsupported, out.ID)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("%s: missing DTSTART", out.ID)
	}
	if isDateValue(dtStart) {
		return out, fmt.Errorf("%w: %s is all-day", ErrUnsupported, out.ID)
	}

	start, err := parseWallTime(dtStart.Value)
	if err != nil {
		return out, fmt.Errorf("%s: DTSTART: %w", out.ID, err)
	}

	end := start.Add(time.Hour)
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err = parseWallTime(dtEnd.Value); err != nil {
			return out, fmt.Errorf("%s: DTEND: %w", out.ID, err)
		}
	}

	if !withinOneDay(start, end) {
		return out, fmt.Errorf("%w: %s spans multiple days", ErrUnsupported, out.ID)
	}

	out.Date = civil.DateOf(start)
	out.Start = model.MustTimeOfDay(start.Hour(), start.Minute())
	out.End = model.MustTimeOfDay(end.Hour(), end.Minute())
	return out, nil
}

// withinOneDay reports whether end falls on start's date, or exactly at the
// following midnight (how a block running to 24:00 is exported).
func withinOneDay(start, end time.Time) bool {
	startDay, endDay := civil.DateOf(start), civil.DateOf(end)
	if endDay == startDay {
		return true
	}
	return endDay == startDay.AddDays(1) && end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0
}

// isDateValue reports whether a DTSTART is a DATE rather than DATE-TIME.
func isDateValue(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

// parseWallTime reads a DATE-TIME value keeping its written wall clock. UTC
// ("Z") values are read as written.
func parseWallTime(v string) (time.Time, error) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "Z")
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	return time.Parse(floatingLayout, v)
}
