package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"weekplanner/internal/db"
	"weekplanner/internal/model"
)

// ErrNotFound is returned when no event has the requested ID.
var ErrNotFound = errors.New("not found")

// SQLiteEventStore persists the flat event list. List order is insertion
// order; updating an event keeps its position.
type SQLiteEventStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteEventStore creates a store over an opened database.
func NewSQLiteEventStore(database *sql.DB) *SQLiteEventStore {
	return &SQLiteEventStore{db: database, now: time.Now}
}

const selectColumns = `SELECT id, title, description, date, start_minute, end_minute FROM events`

// List returns every stored event. An empty store yields an empty list.
func (s *SQLiteEventStore) List(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListBetween returns events dated within [from, to], inclusive.
func (s *SQLiteEventStore) ListBetween(ctx context.Context, from, to civil.Date) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE date >= ? AND date <= ? ORDER BY seq`,
		from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("listing events between %s and %s: %w", from, to, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Upsert inserts ev or overwrites the event with the same ID.
func (s *SQLiteEventStore) Upsert(ctx context.Context, ev model.Event) error {
	return upsert(ctx, s.db, ev, s.now())
}

// Delete removes the event with the given ID.
func (s *SQLiteEventStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting event %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting event %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("event %q: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertAll writes events in one transaction; either all land or none.
func (s *SQLiteEventStore) UpsertAll(ctx context.Context, events []model.Event) error {
	now := s.now()
	return db.WithinTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		for _, ev := range events {
			if err := upsert(ctx, tx, ev, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsert(ctx context.Context, q db.DBTX, ev model.Event, now time.Time) error {
	if ev.ID == "" {
		return errors.New("upserting event: empty id")
	}
	query := `INSERT INTO events (id, title, description, date, start_minute, end_minute, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			date = excluded.date,
			start_minute = excluded.start_minute,
			end_minute = excluded.end_minute,
			updated_at = excluded.updated_at`
	_, err := q.ExecContext(ctx, query,
		ev.ID,
		ev.Title,
		ev.Description,
		ev.Date.String(),
		ev.Start.Minutes(),
		ev.End.Minutes(),
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting event %q: %w", ev.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		ev         model.Event
		dateStr    string
		start, end int
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &dateStr, &start, &end); err != nil {
		return model.Event{}, err
	}
	d, err := civil.ParseDate(dateStr)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %q has bad date %q: %w", ev.ID, dateStr, err)
	}
	ev.Date = d
	ev.Start = model.TimeOfDay(start)
	ev.End = model.TimeOfDay(end)
	return ev, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
