package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"weekplanner/internal/config"
	"weekplanner/internal/ics"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
	"weekplanner/internal/planner"
	"weekplanner/internal/session"
	"weekplanner/internal/store"
)

// maxBodyBytes caps request bodies, imports included.
const maxBodyBytes = 4 << 20

// Server provides the week page and the JSON API over one shared planner.
type Server struct {
	cfg     *config.Config
	planner *planner.Planner
	// fetcher may be nil; URL imports are refused then.
	fetcher *ics.Fetcher
	router  *mux.Router
	metrics *metrics
	limiter *rateLimiter
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, p *planner.Planner, fetcher *ics.Fetcher) *Server {
	s := &Server{
		cfg:     cfg,
		planner: p,
		fetcher: fetcher,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	s.metrics = newMetrics(func() float64 { return float64(len(p.Events())) })
	if cfg.RateLimit.RPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy)
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in recovery, CORS and, if configured,
// basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	h = handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(h)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(appLog.Printer()),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean auth is off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// StartServer serves until ctx is canceled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, p *planner.Planner, fetcher *ics.Fetcher) error {
	s := NewServer(cfg, p, fetcher)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.monitorMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	r.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/calendar.ics", s.handleExport).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.middleware)
	}
	api.HandleFunc("/weeks", s.handleWeeks).Methods(http.MethodGet)
	api.HandleFunc("/week", s.handleWeek).Methods(http.MethodGet)
	api.HandleFunc("/session/week", s.handleSelectWeek).Methods(http.MethodPut)
	api.HandleFunc("/editor", s.handleOpenEditor).Methods(http.MethodPost)
	api.HandleFunc("/editor", s.handleCloseEditor).Methods(http.MethodDelete)
	api.HandleFunc("/editor/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", s.handleDeleteEvent).Methods(http.MethodDelete)
	api.HandleFunc("/import/ics", s.handleImportICS).Methods(http.MethodPost)
	api.HandleFunc("/import/legacy", s.handleImportLegacy).Methods(http.MethodPost)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWeeks(w http.ResponseWriter, _ *http.Request) {
	opts, err := s.planner.Weeks()
	if err != nil {
		s.fail(w, "listing weeks", err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleWeek(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.planner.Week())
}

type selectWeekRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) handleSelectWeek(w http.ResponseWriter, r *http.Request) {
	var req selectWeekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.planner.SelectWeek(req.Offset); err != nil {
		s.fail(w, "selecting week", err)
		return
	}
	writeJSON(w, http.StatusOK, s.planner.Week())
}

func (s *Server) handleOpenEditor(w http.ResponseWriter, r *http.Request) {
	var req planner.OpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ed, err := s.planner.OpenEditor(req)
	if err != nil {
		s.fail(w, "opening editor", err)
		return
	}
	writeJSON(w, http.StatusOK, ed)
}

func (s *Server) handleCloseEditor(w http.ResponseWriter, _ *http.Request) {
	s.planner.CloseEditor()
	w.WriteHeader(http.StatusNoContent)
}

// handleSave accepts the editor form as JSON or as an urlencoded HTML form.
// HTML form posts are redirected back to the week page.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	htmlForm := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

	var (
		f   session.Form
		err error
	)
	if htmlForm {
		f, err = parseHTMLForm(r)
	} else {
		f.Day = session.NoDay
		err = decodeJSON(r, &f)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.planner.Save(r.Context(), f)
	if err != nil {
		s.fail(w, "saving event", err)
		return
	}
	s.metrics.eventsSaved.Inc()

	if htmlForm {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func parseHTMLForm(r *http.Request) (session.Form, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return session.Form{}, fmt.Errorf("parsing form: %w", err)
	}
	f := session.Form{
		Title:       r.PostForm.Get("title"),
		Description: r.PostForm.Get("description"),
		Day:         session.NoDay,
		StartTime:   r.PostForm.Get("startTime"),
		EndTime:     r.PostForm.Get("endTime"),
	}
	if v := r.PostForm.Get("day"); v != "" {
		day, err := strconv.Atoi(v)
		if err != nil {
			return session.Form{}, fmt.Errorf("invalid day %q", v)
		}
		f.Day = day
	}
	return f, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.planner.Events())
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.planner.Delete(r.Context(), id); err != nil {
		s.fail(w, "deleting event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="weekplanner.ics"`)
	if err := ics.WriteTo(w, s.planner.Events(), s.now()); err != nil {
		appLog.Error("writing calendar export failed", err)
	}
}

type importResponse struct {
	Added   int      `json:"added"`
	Skipped []string `json:"skipped"`
}

// handleImportICS reads an .ics body, or fetches ?url= when a fetcher is
// configured.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if url := r.URL.Query().Get("url"); url != "" {
		if s.fetcher == nil {
			writeError(w, http.StatusBadRequest, "url import is not enabled")
			return
		}
		res, err := s.fetcher.Fetch(r.Context(), url)
		if err != nil {
			appLog.Error("ics fetch failed", err)
			writeError(w, http.StatusBadGateway, "failed to fetch calendar")
			return
		}
		body = res.Body
	} else {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		body = b
	}

	events, skipped, err := ics.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.importEvents(w, r, events, skipped)
}

func (s *Server) handleImportLegacy(w http.ResponseWriter, r *http.Request) {
	events, skipped, err := store.DecodeLegacy(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.importEvents(w, r, events, skipped)
}

func (s *Server) importEvents(w http.ResponseWriter, r *http.Request, events []model.Event, skipped []error) {
	added, err := s.planner.Import(r.Context(), events)
	if err != nil {
		s.fail(w, "importing events", err)
		return
	}
	s.metrics.eventsImported.Add(float64(added))

	resp := importResponse{Added: added, Skipped: make([]string, 0, len(skipped))}
	for _, e := range skipped {
		resp.Skipped = append(resp.Skipped, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps planner errors onto status codes: bad input is 400, an unknown
// event 404, anything else 500 without leaking the cause.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, session.ErrEventNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	default:
		appLog.Error(op+" failed", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
