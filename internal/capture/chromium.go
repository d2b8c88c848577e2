// Package capture snapshots the rendered week page to PNG with headless
// Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"weekplanner/internal/config"
)

const (
	DefaultWidth   = 1400
	DefaultHeight  = 1600
	DefaultTimeout = 30 * time.Second

	// readySelector is set on the page root once the grid is painted.
	readySelector = `[data-ready="true"]`
)

// Options defines one screenshot of the week page.
type Options struct {
	// BaseURL is the planner server, e.g. "http://127.0.0.1:8080".
	BaseURL string

	// Week is the offset of the week to capture, 0 for the current week.
	Week int

	OutputPath string

	Width  int
	Height int

	// Username and Password are sent as Basic Auth when set.
	Username string
	Password string

	Timeout time.Duration
}

// OptionsFromConfig fills viewport, output and credentials from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		BaseURL:    "http://" + cfg.Listen,
		OutputPath: cfg.Capture.Output,
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
	}
	if cfg.BasicAuth != nil {
		o.Username = cfg.BasicAuth.Username
		o.Password = cfg.BasicAuth.Password
	}
	return o
}

// PageURL is the week page address the capture navigates to.
func (o Options) PageURL() (string, error) {
	if o.BaseURL == "" {
		return "", errors.New("capture: base URL is required")
	}
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("capture: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("capture: unsupported scheme %q", u.Scheme)
	}
	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
	}
	u.Path = "/"
	u.RawQuery = url.Values{"week": {strconv.Itoa(o.Week)}}.Encode()
	return u.String(), nil
}

func (o Options) withDefaults() (Options, error) {
	if o.OutputPath == "" {
		return o, errors.New("capture: output path is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// CaptureWeekPNG loads the week page in headless Chromium, waits until the
// page root reports data-ready="true" and writes a full-page PNG. The week
// is chosen with ?week=, which does not change the server's selected week.
func CaptureWeekPNG(parentCtx context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}
	pageURL, err := opts.PageURL()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := config.WriteFileAtomic(opts.OutputPath, png, ".weekplanner-capture-*.tmp"); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
