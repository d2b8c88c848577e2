// Package cli wires the planner packages into the weekplanner command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"weekplanner/internal/config"
	"weekplanner/internal/db"
	"weekplanner/internal/ics"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/planner"
	"weekplanner/internal/store"
)

const defaultConfigPath = "./weekplanner.yaml"

// app is filled by the root command before any subcommand runs.
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	now        func() time.Time
}

// NewRootCmd creates the top-level "weekplanner" command.
func NewRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:           "weekplanner",
		Short:         "Weekly calendar planner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Optional dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newCaptureCmd(a),
		newDayCmd(a),
	)
	return root
}

func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.configPath, err)
	}
	a.cfg = cfg
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"database", cfg.Database,
		"span_policy", cfg.SpanPolicy,
		"lanes", cfg.Layout.Lanes,
		"export_cron", cfg.Export.Cron,
	)
	return nil
}

// openPlanner opens the database and loads a planner over it. The returned
// func closes the database.
func (a *app) openPlanner(ctx context.Context) (*planner.Planner, func(), error) {
	database, err := db.OpenDB(a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	p, err := planner.New(ctx, store.NewSQLiteEventStore(database), planner.Options{
		Policy: a.cfg.Policy(),
		Lanes:  a.cfg.Layout.Lanes,
		Past:   a.cfg.Weeks.Past,
		Future: a.cfg.Weeks.Future,
		Now:    a.now,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return p, func() { database.Close() }, nil
}

// fetcher caches downloaded calendars next to the database.
func (a *app) fetcher() *ics.Fetcher {
	return ics.NewFetcher(filepath.Join(filepath.Dir(a.cfg.Database), "ics-cache"), nil)
}
