// Package planner ties the session state, the event store and the grid
// layout together for callers that share one planner, such as the HTTP
// server. Operations are serialized; each one replaces the session value.
package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"weekplanner/internal/grid"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/session"
	"weekplanner/internal/week"
)

// EventStore is the persistence the planner needs.
type EventStore interface {
	List(ctx context.Context) ([]model.Event, error)
	Upsert(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, id string) error
	UpsertAll(ctx context.Context, events []model.Event) error
}

// Options configures a Planner.
type Options struct {
	Policy session.SpanPolicy
	Lanes  bool
	Past   int
	Future int
	// Now defaults to time.Now.
	Now   func() time.Time
	NewID session.IDFunc
}

// Planner is safe for concurrent use.
type Planner struct {
	store EventStore
	opts  Options

	mu    sync.Mutex
	state session.State
}

// DayView is one rendered column of the week.
type DayView struct {
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	Date      civil.Date     `json:"date"`
	Label     string         `json:"label"`
	IsToday   bool           `json:"isToday"`
	Blocks    []grid.Block   `json:"blocks"`
	Occupancy grid.Occupancy `json:"occupancy"`
	Free      []grid.Span    `json:"free"`
}

// WeekView is the selected week ready for painting.
type WeekView struct {
	Offset int             `json:"offset"`
	Label  string          `json:"label"`
	Days   []DayView       `json:"days"`
	Hours  []string        `json:"hours"`
	Editor *session.Editor `json:"editor,omitempty"`
}

// New loads every stored event once and starts a session on the current week.
func New(ctx context.Context, store EventStore, opts Options) (*Planner, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = session.NewUUID
	}
	if opts.Policy == "" {
		opts.Policy = session.SpanReject
	}

	events, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	appLog.Info("planner loaded", "events", len(events))

	return &Planner{
		store: store,
		opts:  opts,
		state: session.New(events),
	}, nil
}

func (p *Planner) today() civil.Date {
	return civil.DateOf(p.opts.Now())
}

// State returns the current session value.
func (p *Planner) State() session.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Events returns the full event collection.
func (p *Planner) Events() []model.Event {
	return p.State().Events
}

// Weeks lists the week selector options around today.
func (p *Planner) Weeks() ([]week.Option, error) {
	return week.Options(p.today(), p.opts.Past, p.opts.Future)
}

// SelectWeek switches the visible week. Offsets outside the selector range
// are refused.
func (p *Planner) SelectWeek(offset int) (session.State, error) {
	if err := p.checkOffset(offset); err != nil {
		return p.State(), err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = session.SelectWeek(p.state, offset)
	return p.state, nil
}

func (p *Planner) checkOffset(offset int) error {
	if offset < -p.opts.Past || offset > p.opts.Future {
		return &session.ValidationError{
			Field:  "offset",
			Reason: fmt.Sprintf("must be within -%d..%d", p.opts.Past, p.opts.Future),
		}
	}
	return nil
}

// OpenRequest names what was clicked to open the editor.
type OpenRequest struct {
	// Kind is "slot", "day", "quick" or "event".
	Kind    string     `json:"kind"`
	Date    civil.Date `json:"date"`
	Hour    int        `json:"hour"`
	Day     int        `json:"day"`
	EventID string     `json:"eventId"`
}

// OpenEditor opens the event form for a slot, a day header, the quick-add
// button or an existing event.
func (p *Planner) OpenEditor(req OpenRequest) (*session.Editor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		next session.State
		err  error
	)
	switch req.Kind {
	case "slot":
		next, err = session.OpenSlot(p.state, req.Date, req.Hour)
	case "day":
		next, err = session.OpenDay(p.state, req.Day)
	case "quick", "":
		next = session.OpenQuickAdd(p.state)
	case "event":
		next, err = session.OpenEvent(p.state, req.EventID)
	default:
		err = &session.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", req.Kind)}
	}
	if err != nil {
		return nil, err
	}
	p.state = next
	return p.state.Editor, nil
}

// CloseEditor discards the open form.
func (p *Planner) CloseEditor() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = session.CloseEditor(p.state)
}

// Save applies the form to the open editor and persists the result. The
// session only advances once the store accepted the write.
func (p *Planner) Save(ctx context.Context, f session.Form) (model.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, ev, err := session.Save(p.state, f, session.SaveOptions{
		Today:  p.today(),
		Policy: p.opts.Policy,
		NewID:  p.opts.NewID,
	})
	if err != nil {
		return model.Event{}, err
	}
	if err := p.store.Upsert(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("saving event: %w", err)
	}
	p.state = next
	appLog.Info("event saved", "id", ev.ID, "date", ev.Date, "start", ev.Start, "end", ev.End)
	return ev, nil
}

// Delete removes an event from the session and the store.
func (p *Planner) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, err := session.Delete(p.state, id)
	if err != nil {
		return err
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	p.state = next
	appLog.Info("event deleted", "id", id)
	return nil
}

// Import adds events whose IDs are not yet known, in one store transaction.
// It returns how many were added.
func (p *Planner) Import(ctx context.Context, events []model.Event) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, added := session.Merge(p.state, events)
	if len(added) == 0 {
		return 0, nil
	}
	if err := p.store.UpsertAll(ctx, added); err != nil {
		return 0, fmt.Errorf("importing events: %w", err)
	}
	p.state = next
	appLog.Info("events imported", "added", len(added), "offered", len(events))
	return len(added), nil
}

// Week lays out the selected week.
func (p *Planner) Week() WeekView {
	s := p.State()
	return BuildWeek(s, p.today(), p.opts.Lanes)
}

// WeekAt lays out the week at offset without selecting it. The open editor
// is only shown on the selected week, since its day index is relative to
// that week.
func (p *Planner) WeekAt(offset int) (WeekView, error) {
	if err := p.checkOffset(offset); err != nil {
		return WeekView{}, err
	}
	s := p.State()
	if offset != s.WeekOffset {
		s.Editor = nil
	}
	return BuildWeek(session.SelectWeek(s, offset), p.today(), p.opts.Lanes), nil
}

// Day lays out a single date from the full collection.
func (p *Planner) Day(d civil.Date) grid.DayLayout {
	return layout(model.OnDate(p.Events(), d), p.opts.Lanes)
}

// BuildWeek is the pure form of Week.
func BuildWeek(s session.State, today civil.Date, lanes bool) WeekView {
	dates := s.WeekDates(today)
	v := WeekView{
		Offset: s.WeekOffset,
		Label:  week.RangeLabel(dates[0], dates[week.DaysPerWeek-1]),
		Days:   make([]DayView, 0, week.DaysPerWeek),
		Hours:  week.HourLabels(),
		Editor: s.Editor,
	}
	for i, d := range dates {
		dl := layout(model.OnDate(s.Events, d), lanes)
		v.Days = append(v.Days, DayView{
			Index:     i,
			Name:      week.DayNames[i],
			Date:      d,
			Label:     week.ShortLabel(d),
			IsToday:   d == today,
			Blocks:    dl.Blocks,
			Occupancy: dl.Occupancy,
			Free:      dl.Occupancy.FreeSpans(),
		})
	}
	return v
}

func layout(events []model.Event, lanes bool) grid.DayLayout {
	dl := grid.LayoutDay(events)
	if lanes {
		dl.Blocks = grid.AssignLanes(dl.Blocks)
	}
	return dl
}
