// Package session holds the planner's working state as an immutable value.
// Every operation takes a State and returns a new one; the input State and
// the slices it references are never written to.
package session

import (
	"errors"
	"fmt"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"weekplanner/internal/model"
	"weekplanner/internal/week"
)

// ErrEventNotFound is returned when an operation names an unknown event ID.
var ErrEventNotFound = errors.New("event not found")

type EditorMode string

const (
	ModeAdd  EditorMode = "add"
	ModeEdit EditorMode = "edit"
)

// Editor is the open event form. EventID is set in edit mode only.
type Editor struct {
	Mode    EditorMode `json:"mode"`
	EventID string     `json:"eventId,omitempty"`
	Form    Form       `json:"form"`
}

// State is the full session: selected week, the event collection and the
// open editor, if any.
type State struct {
	WeekOffset int           `json:"weekOffset"`
	Events     []model.Event `json:"events"`
	Editor     *Editor       `json:"editor,omitempty"`
}

// New starts a session on the current week with the loaded events.
func New(events []model.Event) State {
	return State{Events: slices.Clone(events)}
}

// IDFunc produces a fresh event ID.
type IDFunc func() string

// NewUUID is the default IDFunc.
func NewUUID() string {
	return uuid.NewString()
}

// Find returns the event with the given ID.
func (s State) Find(id string) (model.Event, bool) {
	i := s.index(id)
	if i < 0 {
		return model.Event{}, false
	}
	return s.Events[i], true
}

func (s State) index(id string) int {
	return slices.IndexFunc(s.Events, func(e model.Event) bool { return e.ID == id })
}

// WeekDates returns the dates of the selected week relative to today.
func (s State) WeekDates(today civil.Date) [week.DaysPerWeek]civil.Date {
	return week.Dates(today, s.WeekOffset)
}

// SelectWeek switches the visible week.
func SelectWeek(s State, offset int) State {
	s.WeekOffset = offset
	return s
}

// OpenSlot opens an add form for an hour slot: the day comes from date and
// the span defaults to one hour starting at hour, wrapping at midnight.
func OpenSlot(s State, date civil.Date, hour int) (State, error) {
	if hour < 0 || hour > 23 {
		return s, &ValidationError{Field: "hour", Reason: fmt.Sprintf("must be 0-23, got %d", hour)}
	}
	start := model.MustTimeOfDay(hour, 0)
	end := model.MustTimeOfDay((hour+1)%24, 0)

	s.Editor = &Editor{
		Mode: ModeAdd,
		Form: Form{
			Day:       week.Weekday(date),
			StartTime: start.String(),
			EndTime:   end.String(),
		},
	}
	return s, nil
}

// OpenDay opens an add form from a day header: day preset, no times.
func OpenDay(s State, day int) (State, error) {
	if day < 0 || day >= week.DaysPerWeek {
		return s, &ValidationError{Field: "day", Reason: fmt.Sprintf("must be 0-6, got %d", day)}
	}
	s.Editor = &Editor{Mode: ModeAdd, Form: Form{Day: day}}
	return s, nil
}

// OpenQuickAdd opens an empty add form.
func OpenQuickAdd(s State) State {
	s.Editor = &Editor{Mode: ModeAdd, Form: Form{Day: NoDay}}
	return s
}

// OpenEvent opens the edit form for an existing event.
func OpenEvent(s State, id string) (State, error) {
	ev, ok := s.Find(id)
	if !ok {
		return s, fmt.Errorf("open editor for %q: %w", id, ErrEventNotFound)
	}
	s.Editor = &Editor{
		Mode:    ModeEdit,
		EventID: ev.ID,
		Form: Form{
			Title:       ev.Title,
			Description: ev.Description,
			Day:         week.Weekday(ev.Date),
			StartTime:   ev.Start.String(),
			EndTime:     ev.End.String(),
		},
	}
	return s, nil
}

// CloseEditor discards the open form.
func CloseEditor(s State) State {
	s.Editor = nil
	return s
}

// SaveOptions carries the inputs Save needs besides the form.
type SaveOptions struct {
	Today  civil.Date
	Policy SpanPolicy
	NewID  IDFunc
}

// Save applies the form to the open editor. In edit mode the edited event
// is replaced in place and keeps its ID; otherwise a new event is appended.
// The event's date is the form's day within the selected week. The editor is
// closed on success; on error the input state is returned unchanged.
func Save(s State, f Form, opts SaveOptions) (State, model.Event, error) {
	v, err := validate(f, opts.Policy)
	if err != nil {
		return s, model.Event{}, err
	}

	ev := model.Event{
		Title:       v.title,
		Description: v.description,
		Date:        s.WeekDates(opts.Today)[v.day],
		Start:       v.start,
		End:         v.end,
	}

	next := s
	if s.Editor != nil && s.Editor.Mode == ModeEdit {
		i := s.index(s.Editor.EventID)
		if i < 0 {
			return s, model.Event{}, fmt.Errorf("save %q: %w", s.Editor.EventID, ErrEventNotFound)
		}
		ev.ID = s.Events[i].ID
		next.Events = slices.Clone(s.Events)
		next.Events[i] = ev
	} else {
		newID := opts.NewID
		if newID == nil {
			newID = NewUUID
		}
		ev.ID = newID()
		if _, exists := s.Find(ev.ID); exists {
			return s, model.Event{}, fmt.Errorf("save: duplicate event id %q", ev.ID)
		}
		next.Events = append(slices.Clone(s.Events), ev)
	}

	next.Editor = nil
	return next, ev, nil
}

// Delete removes the event and closes the editor.
func Delete(s State, id string) (State, error) {
	i := s.index(id)
	if i < 0 {
		return s, fmt.Errorf("delete %q: %w", id, ErrEventNotFound)
	}
	next := s
	next.Events = slices.Delete(slices.Clone(s.Events), i, i+1)
	next.Editor = nil
	return next, nil
}

// Merge appends imported events, skipping IDs already present. It returns
// the new state and the events actually added.
func Merge(s State, events []model.Event) (State, []model.Event) {
	seen := make(map[string]struct{}, len(s.Events)+len(events))
	for _, e := range s.Events {
		seen[e.ID] = struct{}{}
	}
	added := make([]model.Event, 0, len(events))
	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		added = append(added, e)
	}
	next := s
	next.Events = append(slices.Clone(s.Events), added...)
	return next, added
}
