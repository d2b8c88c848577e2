package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"weekplanner/internal/session"
	"weekplanner/internal/week"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WeeksConfig bounds the week selector around the current week.
type WeeksConfig struct {
	Past   int `yaml:"past" json:"past"`
	Future int `yaml:"future" json:"future"`
}

// LayoutConfig toggles optional grid behavior.
type LayoutConfig struct {
	// Lanes spreads overlapping events side by side instead of stacking them.
	Lanes bool `yaml:"lanes" json:"lanes"`
}

// ExportConfig drives the scheduled .ics export. An empty Cron disables it.
type ExportConfig struct {
	Cron string `yaml:"cron" json:"cron"`
	Path string `yaml:"path" json:"path"`
}

// CaptureConfig holds defaults for PNG snapshots of the week page.
type CaptureConfig struct {
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	Output string `yaml:"output" json:"output"`
}

// RateLimitConfig limits API requests per client. RPS <= 0 disables it.
// TrustProxy keys clients by the last X-Forwarded-For hop instead of the
// connection address; enable it only behind a reverse proxy that appends
// that header.
type RateLimitConfig struct {
	RPS        float64 `yaml:"rps" json:"rps"`
	Burst      int     `yaml:"burst" json:"burst"`
	TrustProxy bool    `yaml:"trust_proxy" json:"trust_proxy"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Database is the SQLite file holding events.
	Database string `yaml:"database" json:"database"`

	// LogLevel is one of "debug", "info", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// SpanPolicy decides whether an end time at or before the start time is
	// rejected ("reject") or stored as entered ("allow").
	SpanPolicy string `yaml:"span_policy" json:"span_policy"`

	Weeks     WeeksConfig     `yaml:"weeks" json:"weeks"`
	Layout    LayoutConfig    `yaml:"layout" json:"layout"`
	Export    ExportConfig    `yaml:"export" json:"export"`
	Capture   CaptureConfig   `yaml:"capture" json:"capture"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides are read from the environment after the file.
type envOverrides struct {
	Listen     string `env:"PLANNER_LISTEN"`
	Database   string `env:"PLANNER_DB"`
	LogLevel   string `env:"PLANNER_LOG_LEVEL"`
	SpanPolicy string `env:"PLANNER_SPAN_POLICY"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     "127.0.0.1:8080",
		Database:   "./var/weekplanner.db",
		LogLevel:   "info",
		SpanPolicy: string(session.SpanReject),
		Weeks:      WeeksConfig{Past: week.DefaultPast, Future: week.DefaultFuture},
		Export:     ExportConfig{Cron: "", Path: "./var/weekplanner.ics"},
		Capture:    CaptureConfig{Width: 1400, Height: 1600, Output: "./var/week.png"},
		RateLimit:  RateLimitConfig{RPS: 5, Burst: 30},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if _, err := session.ParseSpanPolicy(c.SpanPolicy); err != nil || c.SpanPolicy == "" {
		// Unknown value; keep the strict behavior.
		c.SpanPolicy = def.SpanPolicy
	}
	if c.Weeks.Past < 0 {
		c.Weeks.Past = def.Weeks.Past
	}
	if c.Weeks.Future < 0 {
		c.Weeks.Future = def.Weeks.Future
	}
	if c.Weeks.Past == 0 && c.Weeks.Future == 0 {
		c.Weeks = def.Weeks
	}
	if c.Export.Path == "" {
		c.Export.Path = def.Export.Path
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Capture.Output == "" {
		c.Capture.Output = def.Capture.Output
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
}

// Policy returns the parsed span policy.
func (c *Config) Policy() session.SpanPolicy {
	p, err := session.ParseSpanPolicy(c.SpanPolicy)
	if err != nil {
		return session.SpanReject
	}
	return p
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
//   - PLANNER_* environment variables override the result in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.Database != "" {
		c.Database = o.Database
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.SpanPolicy != "" {
		c.SpanPolicy = o.SpanPolicy
	}
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".weekplanner-config-*.tmp")
}

// WriteFileAtomic writes data next to path under a temp name, fsyncs, sets
// 0600 and renames over path.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
