package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"weekplanner/internal/backup"
	"weekplanner/internal/capture"
	"weekplanner/internal/db"
	"weekplanner/internal/ics"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/store"
	"weekplanner/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the week page and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, closeDB, err := a.openPlanner(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if a.cfg.Export.Cron != "" {
				sched, err := backup.Schedule(a.cfg.Export.Cron, backup.NewExporter(p, a.cfg.Export.Path))
				if err != nil {
					return err
				}
				defer sched.Stop(context.Background())
			}

			err = web.StartServer(ctx, a.cfg, p, a.fetcher())
			appLog.Info("weekplanner exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output, from, to string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write events as an .ics calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if (from == "") != (to == "") {
				return fmt.Errorf("--from and --to must be given together")
			}

			var src backup.Source
			if from != "" {
				events, err := a.eventsBetween(ctx, from, to)
				if err != nil {
					return err
				}
				src = eventList(events)
			} else {
				p, closeDB, err := a.openPlanner(ctx)
				if err != nil {
					return err
				}
				defer closeDB()
				src = p
			}

			if output == "-" {
				return ics.WriteTo(cmd.OutOrStdout(), src.Events(), a.now())
			}
			if output == "" {
				output = a.cfg.Export.Path
			}
			return backup.NewExporter(src, output).RunOnce()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `Output path, "-" for stdout (default: export.path)`)
	cmd.Flags().StringVar(&from, "from", "", "First date to export (YYYY-MM-DD, needs --to)")
	cmd.Flags().StringVar(&to, "to", "", "Last date to export, inclusive (YYYY-MM-DD)")
	return cmd
}

// eventList is a fixed backup.Source.
type eventList []model.Event

func (l eventList) Events() []model.Event { return l }

// eventsBetween reads the stored events dated within [from, to].
func (a *app) eventsBetween(ctx context.Context, from, to string) ([]model.Event, error) {
	fromDate, err := civil.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("invalid --from %q: %w", from, err)
	}
	toDate, err := civil.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("invalid --to %q: %w", to, err)
	}
	if toDate.Before(fromDate) {
		return nil, fmt.Errorf("--to %s is before --from %s", toDate, fromDate)
	}

	database, err := db.OpenDB(a.cfg.Database)
	if err != nil {
		return nil, err
	}
	defer database.Close()
	return store.NewSQLiteEventStore(database).ListBetween(ctx, fromDate, toDate)
}

func newImportCmd(a *app) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "import <file|url>",
		Short: "Import events from an .ics file or URL, or a legacy JSON blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := args[0]

			var (
				events  []model.Event
				skipped []error
			)
			switch {
			case legacy:
				f, err := os.Open(src)
				if err != nil {
					return err
				}
				defer f.Close()
				events, skipped, err = store.DecodeLegacy(f)
				if err != nil {
					return err
				}
			default:
				body, err := readSource(ctx, a, src)
				if err != nil {
					return err
				}
				events, skipped, err = ics.Parse(body)
				if err != nil {
					return err
				}
			}

			p, closeDB, err := a.openPlanner(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			added, err := p.Import(ctx, events)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d of %d events\n", added, len(events))
			for _, e := range skipped {
				fmt.Fprintf(out, "  skipped: %v\n", e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Treat the file as the old browser planner's JSON blob (localStorage key "+store.LegacyKey+")")
	return cmd
}

func readSource(ctx context.Context, a *app, src string) ([]byte, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		res, err := a.fetcher().Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	}
	return os.ReadFile(src)
}

func newCaptureCmd(a *app) *cobra.Command {
	var (
		weekOffset int
		output     string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save a PNG of the week page from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := capture.OptionsFromConfig(a.cfg)
			opts.Week = weekOffset
			if output != "" {
				opts.OutputPath = output
			}
			if baseURL != "" {
				opts.BaseURL = baseURL
			}
			if err := capture.CaptureWeekPNG(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&weekOffset, "week", 0, "Week offset from the current week")
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG path (default: capture.output)")
	cmd.Flags().StringVar(&baseURL, "url", "", "Server base URL (default: http://<listen>)")
	return cmd
}

func newDayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "Print one day's grid layout as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := civil.DateOf(a.now())
			if len(args) == 1 {
				parsed, err := civil.ParseDate(args[0])
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", args[0], err)
				}
				d = parsed
			}

			p, closeDB, err := a.openPlanner(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p.Day(d))
		},
	}
	return cmd
}
