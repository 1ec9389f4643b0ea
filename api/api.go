// Package api exposes the client's state over a local read-mostly HTTP
// surface so desktop widgets and scripts can poll attendance and timer
// state without speaking the upstream RPC dialect themselves.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbaldwin/punchclock/attendance"
	"github.com/kbaldwin/punchclock/clock"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/session"
	"github.com/kbaldwin/punchclock/storage"
	"github.com/kbaldwin/punchclock/timesheet"
)

// API holds the dependencies needed by the local HTTP handlers.
type API struct {
	sessions *session.Manager
	store    storage.Store
	logger   *slog.Logger
	registry *prometheus.Registry
	now      func() string
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. Default is a JSON logger on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithRegistry sets the prometheus registry backing /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *API) { a.registry = reg }
}

// New creates the local API over the session manager and store.
func New(sessions *session.Manager, store storage.Store, opts ...Option) *API {
	a := &API{
		sessions: sessions,
		store:    store,
		now:      clock.NowString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	return a
}

// Router returns a chi.Router with all local routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Get("/api/v1/session", a.SessionInfo)
	r.Get("/api/v1/attendance", a.Attendance)
	r.Post("/api/v1/attendance/toggle", a.ToggleAttendance)
	r.Get("/api/v1/timer", a.RunningTimer)

	return r
}

type sessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
	Employee string `json:"employee,omitempty"`
	Server   string `json:"server,omitempty"`
}

// SessionInfo reports whether a session exists; purely local, no round trip.
func (a *API) SessionInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := a.sessions.Current()
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		LoggedIn: true,
		Username: info.Username,
		Employee: info.EmployeeName,
		Server:   info.BaseURL,
	})
}

// Attendance returns the cached-or-fresh attendance snapshot.
func (a *API) Attendance(w http.ResponseWriter, r *http.Request) {
	svc, err := a.attendanceService()
	if err != nil {
		mapError(w, err)
		return
	}
	state, err := svc.GetStatus(r.Context(), true)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ToggleAttendance flips the check-in state. The one mutating route.
func (a *API) ToggleAttendance(w http.ResponseWriter, r *http.Request) {
	svc, err := a.attendanceService()
	if err != nil {
		mapError(w, err)
		return
	}
	state, err := svc.Toggle(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type timerResponse struct {
	Running bool             `json:"running"`
	Timer   *timesheet.Timer `json:"timer,omitempty"`
	Elapsed int64            `json:"elapsed_seconds,omitempty"`
}

// RunningTimer returns the running timer with a computed elapsed-seconds
// value, or running:false when there is none.
func (a *API) RunningTimer(w http.ResponseWriter, r *http.Request) {
	svc, err := a.timesheetService()
	if err != nil {
		mapError(w, err)
		return
	}
	timer, err := svc.Running(r.Context(), true)
	if err != nil {
		mapError(w, err)
		return
	}
	if timer == nil {
		writeJSON(w, http.StatusOK, timerResponse{})
		return
	}
	elapsed, err := clock.ElapsedSeconds(timer.Start, a.now())
	if err != nil {
		a.logger.Warn("unparseable timer start", slog.String("start", timer.Start))
	}
	writeJSON(w, http.StatusOK, timerResponse{Running: true, Timer: timer, Elapsed: elapsed})
}

func (a *API) attendanceService() (*attendance.Service, error) {
	client, err := a.sessions.Client()
	if err != nil {
		return nil, err
	}
	employeeID := 0
	if user, ok := a.sessions.User(); ok {
		employeeID = user.EmployeeID
	}
	return attendance.NewService(client, employeeID, a.store, a.logger), nil
}

func (a *API) timesheetService() (*timesheet.Service, error) {
	client, err := a.sessions.Client()
	if err != nil {
		return nil, err
	}
	return timesheet.NewService(client, a.store, a.logger), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func mapError(w http.ResponseWriter, err error) {
	kind := rpc.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case rpc.KindSessionExpired:
		status = http.StatusUnauthorized
	case rpc.KindValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}
