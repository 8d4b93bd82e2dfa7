package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"healthcal/internal/calendar"
	"healthcal/internal/config"
	"healthcal/internal/ics"
	appLog "healthcal/internal/log"
	"healthcal/internal/model"
)

// PatientSource lists the tracker's patients for the filter dropdown and
// badge rendering. Satisfied by the API client; tests substitute fakes.
type PatientSource interface {
	Patients(ctx context.Context) ([]model.Patient, error)
}

// Server serves the calendar view (HTML), its JSON API, the ICS feed, and
// the PNG snapshot.
type Server struct {
	cfg      *config.Config
	ctrl     *calendar.Controller
	patients PatientSource
	loc      *time.Location
	debug    bool
	mux      *http.ServeMux
	tmpl     *template.Template
}

//go:embed templates/calendar.html.tmpl
var templateFS embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, ctrl *calendar.Controller, patients PatientSource, loc *time.Location, debug bool) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		patients: patients,
		loc:      loc,
		debug:    debug,
		mux:      http.NewServeMux(),
	}

	funcs := template.FuncMap{
		"eventTime": func(ev model.CalendarEvent) string {
			t, err := ev.At()
			if err != nil {
				return ""
			}
			return t.In(loc).Format("3:04 PM")
		},
	}
	s.tmpl = template.Must(template.New("calendar.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/calendar.html.tmpl"))

	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="healthcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar", s.handleCalendar)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.HandleFunc("/api/grid", s.handleGrid)
	s.mux.HandleFunc("/api/nav", s.handleNav)
	s.mux.HandleFunc("/api/detail", s.handleDetail)
	s.mux.HandleFunc("/api/patients", s.handlePatients)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/calendar", http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarPage is the data passed to the calendar template.
type calendarPage struct {
	Snapshot calendar.Snapshot
	Patients []model.Patient
	Detail   *calendar.Detail
	DayNames []string
}

// handleCalendar renders the calendar view. Navigation is driven by query
// parameters so the page works without client-side scripting:
//
//	GET /calendar?nav=prev|next|today
//	GET /calendar?view=month|week
//	GET /calendar?patient=<id>        (empty value clears the filter)
//	GET /calendar?detail=<day>&i=<n>  (opens the detail block for a marker)
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	snap := s.ctrl.Snapshot()
	acted := false

	if v := q.Get("view"); v != "" {
		snap = s.ctrl.SwitchView(ctx, calendar.ViewMode(v))
		acted = true
	}
	if q.Has("patient") {
		snap = s.ctrl.SetPatientFilter(ctx, q.Get("patient"))
		acted = true
	}
	switch q.Get("nav") {
	case "prev":
		snap = s.ctrl.Prev(ctx)
		acted = true
	case "next":
		snap = s.ctrl.Next(ctx)
		acted = true
	case "today":
		snap = s.ctrl.Today(ctx)
		acted = true
	}
	if !acted && snap.Loading {
		// First render since startup: nothing fetched yet.
		snap = s.ctrl.Refresh(ctx)
	}

	patients, err := s.patients.Patients(ctx)
	if err != nil {
		// The filter dropdown degrades to empty; the grid still renders.
		appLog.Error("patient list unavailable", err)
	}

	page := calendarPage{
		Snapshot: snap,
		Patients: patients,
		DayNames: []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	}

	if day := q.Get("detail"); day != "" {
		if ev, ok := eventAt(snap, model.DayKey(day), parseIntDefault(q.Get("i"), 0)); ok {
			d := calendar.Present(ev)
			page.Detail = &d
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, page); err != nil {
		appLog.Error("calendar template render failed", err)
	}
}

// handleGrid returns the current snapshot as JSON.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	if snap.Loading {
		snap = s.ctrl.Refresh(r.Context())
	}
	writeJSON(w, http.StatusOK, snap)
}

// navRequest is the JSON body for POST /api/nav.
type navRequest struct {
	// Action is one of: prev, next, today, view, filter, refresh.
	Action    string `json:"action"`
	View      string `json:"view,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
}

func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req navRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	var snap calendar.Snapshot
	switch req.Action {
	case "prev":
		snap = s.ctrl.Prev(ctx)
	case "next":
		snap = s.ctrl.Next(ctx)
	case "today":
		snap = s.ctrl.Today(ctx)
	case "view":
		mode := calendar.ViewMode(req.View)
		if !mode.Valid() {
			writeError(w, http.StatusBadRequest, "unknown view mode")
			return
		}
		snap = s.ctrl.SwitchView(ctx, mode)
	case "filter":
		snap = s.ctrl.SetPatientFilter(ctx, req.PatientID)
	case "refresh":
		snap = s.ctrl.Refresh(ctx)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// handleDetail presents one event from the current snapshot.
//
// GET /api/detail?day=YYYY-MM-DD&i=N
//
// The index addresses the rendered sequence for that day: marker order in
// month view, sorted column order in week view.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		writeError(w, http.StatusBadRequest, "day is required")
		return
	}
	idx := parseIntDefault(r.URL.Query().Get("i"), 0)

	ev, ok := eventAt(s.ctrl.Snapshot(), model.DayKey(day), idx)
	if !ok {
		writeError(w, http.StatusNotFound, "no such event in the current view")
		return
	}

	writeJSON(w, http.StatusOK, calendar.Present(ev))
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.patients.Patients(r.Context())
	if err != nil {
		appLog.Error("patients fetch failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// handleRefresh re-aggregates the current range. The create-appointment
// flow calls this on success so new records show up without navigating.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Refresh(r.Context()))
}

// handleICS serves the currently displayed range as an ICS feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	if snap.Loading {
		snap = s.ctrl.Refresh(r.Context())
	}
	if snap.Err != "" {
		writeError(w, http.StatusBadGateway, snap.Err)
		return
	}

	body, err := ics.Export(snap.Range.Label, snap.Buckets.Flatten(), s.loc)
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handlePreview serves the last captured PNG snapshot from disk. The path
// matches the capture pipeline in cmd/healthcal.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.SnapshotPath
	if path == "" {
		path = "/var/lib/healthcal/preview.png"
		if s.debug {
			path = "./cache/preview.png"
		}
	}
	http.ServeFile(w, r, path)
}

// eventAt resolves a (day, index) reference against the rendered grid:
// month markers in bucket order, week columns in sorted order.
func eventAt(snap calendar.Snapshot, day model.DayKey, idx int) (model.CalendarEvent, bool) {
	if idx < 0 {
		return model.CalendarEvent{}, false
	}

	if snap.State.View == calendar.ViewWeek {
		for _, col := range snap.WeekCols {
			if col.Key == day && idx < len(col.Events) {
				return col.Events[idx], true
			}
		}
		return model.CalendarEvent{}, false
	}

	for _, cell := range snap.MonthCells {
		if cell.Key == day && idx < len(cell.Markers) {
			return cell.Markers[idx], true
		}
	}
	return model.CalendarEvent{}, false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
