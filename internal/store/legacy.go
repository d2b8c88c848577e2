package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"

	"weekplanner/internal/model"
)

// LegacyKey is the browser storage key the old planner wrote its blob under.
const LegacyKey = "weeklyPlannerEvents"

type legacyEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

// DecodeLegacy reads the JSON event list exported from the browser planner.
// An empty or "null" blob is an empty list. Records that cannot be converted
// are skipped and reported in the second return value.
func DecodeLegacy(r io.Reader) ([]model.Event, []error, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading legacy blob: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return []model.Event{}, nil, nil
	}

	var raw []legacyEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decoding legacy blob: %w", err)
	}

	events := make([]model.Event, 0, len(raw))
	var skipped []error
	seen := make(map[string]struct{}, len(raw))
	for i, le := range raw {
		ev, err := le.toEvent()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			skipped = append(skipped, fmt.Errorf("record %d: duplicate id %q", i, ev.ID))
			continue
		}
		seen[ev.ID] = struct{}{}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func (le legacyEvent) toEvent() (model.Event, error) {
	if strings.TrimSpace(le.ID) == "" {
		return model.Event{}, fmt.Errorf("missing id")
	}
	d, err := civil.ParseDate(le.Date)
	if err != nil {
		return model.Event{}, fmt.Errorf("id %q: date: %w", le.ID, err)
	}
	start, err := model.ParseTimeOfDay(le.StartTime)
	if err != nil {
		return model.Event{}, fmt.Errorf("id %q: startTime: %w", le.ID, err)
	}
	end, err := model.ParseTimeOfDay(le.EndTime)
	if err != nil {
		return model.Event{}, fmt.Errorf("id %q: endTime: %w", le.ID, err)
	}
	return model.Event{
		ID:          le.ID,
		Title:       le.Title,
		Description: le.Description,
		Date:        d,
		Start:       start,
		End:         end,
	}, nil
}
