package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekplanner/internal/config"
	"weekplanner/internal/db"
	"weekplanner/internal/model"
	"weekplanner/internal/planner"
	"weekplanner/internal/session"
	"weekplanner/internal/store"
)

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv *httptest.Server
	cfg *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	n := 0
	p, err := planner.New(context.Background(), store.NewSQLiteEventStore(database), planner.Options{
		Past:   13,
		Future: 12,
		Now:    func() time.Time { return testNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("ev-%d", n)
		},
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.RateLimit.RPS = 0
	if mutate != nil {
		mutate(cfg)
	}

	s := NewServer(cfg, p, nil)
	s.now = func() time.Time { return testNow }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rd = strings.NewReader(string(buf))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if ba := e.cfg.BasicAuth; ba != nil {
		req.SetBasicAuth(ba.Username, ba.Password)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	})

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	ok := env.do(t, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestEditorFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/editor", map[string]any{"kind": "slot", "date": "2026-10-13", "hour": 9})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ed := decode[session.Editor](t, resp)
	assert.Equal(t, session.ModeAdd, ed.Mode)
	assert.Equal(t, 2, ed.Form.Day)
	assert.Equal(t, "09:00", ed.Form.StartTime)

	resp = env.do(t, http.MethodPost, "/api/editor/save", map[string]any{
		"title": "Standup", "day": 2, "startTime": "09:00", "endTime": "10:30",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev := decode[model.Event](t, resp)
	assert.Equal(t, "ev-1", ev.ID)

	resp = env.do(t, http.MethodGet, "/api/week", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wk := decode[planner.WeekView](t, resp)
	require.Len(t, wk.Days, 7)
	require.Len(t, wk.Days[2].Blocks, 1)
	assert.Equal(t, 90.0, wk.Days[2].Blocks[0].HeightPx)
	assert.Nil(t, wk.Editor)

	resp = env.do(t, http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SUMMARY:Standup")
	assert.Contains(t, string(body), "DTSTART:20261013T090000")

	resp = env.do(t, http.MethodDelete, "/api/events/ev-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/events/ev-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/editor/save", map[string]any{
		"title": "  ", "day": 1, "startTime": "09:00", "endTime": "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "title")

	resp = env.do(t, http.MethodPost, "/api/editor/save", map[string]any{
		"title": "x", "startTime": "09:00", "endTime": "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing day")

	resp = env.do(t, http.MethodPost, "/api/editor/save", `{"title": "x", "colour": "red"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveHTMLFormRedirects(t *testing.T) {
	env := newTestEnv(t, nil)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	form := url.Values{"title": {"Lunch"}, "day": {"4"}, "startTime": {"12:00"}, "endTime": {"13:00"}}
	resp, err := client.PostForm(env.srv.URL+"/api/editor/save", form)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	events := decode[[]model.Event](t, env.do(t, http.MethodGet, "/api/events", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "2026-10-15", events[0].Date.String())
}

func TestSelectWeek(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPut, "/api/session/week", map[string]int{"offset": -1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wk := decode[planner.WeekView](t, resp)
	assert.Equal(t, -1, wk.Offset)
	assert.Equal(t, "Oct 4 - Oct 10, 2026", wk.Label)

	resp = env.do(t, http.MethodPut, "/api/session/week", map[string]int{"offset": 40})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWeeks(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/weeks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var opts []struct {
		Offset int    `json:"offset"`
		Label  string `json:"label"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&opts))
	require.Len(t, opts, 26)
	assert.Equal(t, -13, opts[0].Offset)
	assert.Equal(t, 12, opts[len(opts)-1].Offset)
}

func TestImportLegacy(t *testing.T) {
	env := newTestEnv(t, nil)
	blob := `[
		{"id":"1","title":"Gym","date":"2026-10-12","startTime":"07:00","endTime":"08:00"},
		{"id":"2","title":"Bad","date":"nope","startTime":"07:00","endTime":"08:00"}
	]`
	resp := env.do(t, http.MethodPost, "/api/import/legacy", blob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[importResponse](t, resp)
	assert.Equal(t, 1, got.Added)
	assert.Len(t, got.Skipped, 1)

	resp = env.do(t, http.MethodPost, "/api/import/legacy", blob)
	assert.Equal(t, 0, decode[importResponse](t, resp).Added)
}

func TestImportICS(t *testing.T) {
	env := newTestEnv(t, nil)
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:abc",
		"DTSTART:20261016T140000",
		"DTEND:20261016T150000",
		"SUMMARY:Review",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	resp := env.do(t, http.MethodPost, "/api/import/ics", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[importResponse](t, resp).Added)

	resp = env.do(t, http.MethodPost, "/api/import/ics?url=http://example.invalid/x.ics", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/editor/save", map[string]any{
		"title": "Standup <b>", "description": "room 4 & notes", "day": 2, "startTime": "09:15", "endTime": "09:45",
	})

	resp := env.do(t, http.MethodGet, "/?week=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(body)

	assert.Contains(t, html, `data-ready="true"`)
	assert.Contains(t, html, "Oct 11 - Oct 17, 2026")
	assert.Contains(t, html, "Standup &lt;b&gt;")
	assert.Contains(t, html, "9:15 AM - 9:45 AM")
	// 9h * 60px + 15px, 30px tall.
	assert.Contains(t, html, "top: 555px; height: 30px")
	assert.Contains(t, html, `<div class="desc">room 4 &amp; notes</div>`)

	resp = env.do(t, http.MethodGet, "/?week=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPage_WeekParamDoesNotMoveSelection(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/?week=-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Oct 4 - Oct 10, 2026")
	assert.Contains(t, string(body), `data-offset="-1"`)

	resp = env.do(t, http.MethodGet, "/api/week", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[planner.WeekView](t, resp)
	assert.Equal(t, 0, view.Offset)
	assert.Equal(t, "Oct 11 - Oct 17, 2026", view.Label)

	resp = env.do(t, http.MethodGet, "/", nil)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Oct 11 - Oct 17, 2026")

	resp = env.do(t, http.MethodGet, "/?week=40", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/events", nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/events", nil).StatusCode)
	// Only the API is limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).StatusCode)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/api/events", nil)
	env.do(t, http.MethodDelete, "/api/events/missing", nil)

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `http_requests_total{method="GET",path="/api/events",status="OK"} 1`)
	assert.Contains(t, text, `path="/api/events/{id}"`)
	assert.Contains(t, text, "planner_events 0")
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	rl := newRateLimiter(1, 1, false)
	clock := testNow
	rl.now = func() time.Time { return clock }

	rl.get("10.0.0.1")
	clock = clock.Add(5 * time.Minute)
	rl.get("10.0.0.2")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(r, false))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", clientIP(r, false))
	assert.Equal(t, "10.0.0.1", clientIP(r, true))

	r.Header.Set("X-Forwarded-For", " ")
	assert.Equal(t, "192.0.2.1", clientIP(r, true))
}

func TestRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	})

	get := func(fwd string) int {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/events", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fwd)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, get("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, get("198.51.100.3"))
}

func TestRateLimit_TrustedProxyKeysByForwardedFor(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1, TrustProxy: true}
	})

	get := func(fwd string) int {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/events", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", fwd)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("198.51.100.1"))
	assert.Equal(t, http.StatusOK, get("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, get("203.0.113.9, 198.51.100.2"))
}
