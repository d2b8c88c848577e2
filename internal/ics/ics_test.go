package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/model"
)

var stamp = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestExport_WritesFloatingTimes(t *testing.T) {
	events := []model.Event{{
		ID:          "abc",
		Title:       "Planning",
		Description: "Q4",
		Date:        civil.Date{Year: 2026, Month: 10, Day: 14},
		Start:       model.MustTimeOfDay(9, 15),
		End:         model.MustTimeOfDay(10, 0),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, events, stamp))
	out := buf.String()

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "UID:abc")
	assert.Contains(t, out, "DTSTART:20261014T091500")
	assert.Contains(t, out, "DTEND:20261014T100000")
	assert.Contains(t, out, "SUMMARY:Planning")
	assert.Contains(t, out, "DESCRIPTION:Q4")
}

func TestExport_ReversedSpanEndsNextDay(t *testing.T) {
	events := []model.Event{{
		ID:    "late",
		Title: "Late",
		Date:  civil.Date{Year: 2026, Month: 12, Day: 31},
		Start: model.MustTimeOfDay(23, 0),
		End:   model.MustTimeOfDay(0, 0),
	}}
	out := Export(events, stamp).Serialize()
	assert.Contains(t, out, "DTSTART:20261231T230000")
	assert.Contains(t, out, "DTEND:20270101T000000")
}

func TestExportParse_RoundTrip(t *testing.T) {
	events := []model.Event{
		{ID: "a", Title: "One", Date: civil.Date{Year: 2026, Month: 10, Day: 12}, Start: model.MustTimeOfDay(8, 0), End: model.MustTimeOfDay(9, 30)},
		{ID: "b", Title: "Two", Description: "desc", Date: civil.Date{Year: 2026, Month: 10, Day: 13}, Start: model.MustTimeOfDay(23, 0), End: model.MustTimeOfDay(0, 0)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, events, stamp))

	got, skipped, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, events, got)
}

func TestParse_SkipsUnsupported(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:allday",
		"DTSTART;VALUE=DATE:20261014",
		"SUMMARY:Holiday",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly",
		"DTSTART:20261014T090000",
		"DTEND:20261014T100000",
		"RRULE:FREQ=WEEKLY",
		"SUMMARY:Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTART:20261014T090000",
		"SUMMARY:No UID",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:utc",
		"DTSTART:20261014T131500Z",
		"SUMMARY:Call",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, skipped, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, skipped, 3)
	assert.ErrorIs(t, skipped[0], ErrUnsupported)
	assert.ErrorIs(t, skipped[1], ErrUnsupported)

	// No DTEND: one hour by default.
	assert.Equal(t, "utc", got[0].ID)
	assert.Equal(t, "13:15", got[0].Start.String())
	assert.Equal(t, "14:15", got[0].End.String())
}

func TestParse_SkipsMultiDayEvents(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:conf",
		"DTSTART:20261012T100000",
		"DTEND:20261013T110000",
		"SUMMARY:Conference",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:trip",
		"DTSTART:20261012T100000",
		"DTEND:20261014T090000",
		"SUMMARY:Trip",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:late",
		"DTSTART:20261012T230000",
		"DTEND:20261013T000000",
		"SUMMARY:Late",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:overnight",
		"DTSTART:20261012T230000",
		"DTEND:20261013T003000",
		"SUMMARY:Overnight",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, skipped, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, skipped, 3)
	for _, e := range skipped {
		assert.ErrorIs(t, e, ErrUnsupported)
		assert.Contains(t, e.Error(), "spans multiple days")
	}
	assert.Contains(t, skipped[0].Error(), "conf")
	assert.Contains(t, skipped[1].Error(), "trip")
	assert.Contains(t, skipped[2].Error(), "overnight")

	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)
	assert.Equal(t, civil.Date{Year: 2026, Month: 10, Day: 12}, got[0].Date)
	assert.Equal(t, "23:00", got[0].Start.String())
	assert.Equal(t, "00:00", got[0].End.String())
}

func TestParse_Empty(t *testing.T) {
	_, _, err := Parse([]byte("  "))
	assert.Error(t, err)
}
