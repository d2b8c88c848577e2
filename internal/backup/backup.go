// Package backup writes the event collection to an .ics file, once or on a
// cron schedule.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"weekplanner/internal/config"
	"weekplanner/internal/ics"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

// Source supplies the events to export. *planner.Planner satisfies it.
type Source interface {
	Events() []model.Event
}

// Exporter writes a full calendar snapshot to Path.
type Exporter struct {
	src  Source
	path string
	now  func() time.Time
}

// NewExporter returns an Exporter writing to path.
func NewExporter(src Source, path string) *Exporter {
	return &Exporter{src: src, path: path, now: time.Now}
}

// RunOnce renders the calendar and replaces the file atomically, so readers
// never see a partial export.
func (e *Exporter) RunOnce() error {
	events := e.src.Events()

	var buf bytes.Buffer
	if err := ics.WriteTo(&buf, events, e.now()); err != nil {
		return fmt.Errorf("rendering export: %w", err)
	}
	if err := config.WriteFileAtomic(e.path, buf.Bytes(), ".weekplanner-export-*.tmp"); err != nil {
		return fmt.Errorf("writing export %s: %w", e.path, err)
	}
	appLog.Info("calendar exported", "path", e.path, "events", len(events))
	return nil
}

// Scheduler runs an Exporter on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
}

// Schedule validates spec (standard five-field cron syntax) and starts the
// schedule.
func Schedule(spec string, e *Exporter) (*Scheduler, error) {
	c := cron.New(cron.WithLogger(cronLogger{}))
	if _, err := c.AddFunc(spec, func() {
		if err := e.RunOnce(); err != nil {
			appLog.Error("scheduled export failed", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("export scheduled", "cron", spec, "path", e.path)
	return &Scheduler{cron: c}, nil
}

// Stop stops the schedule and waits for a running export, or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's own messages to the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
