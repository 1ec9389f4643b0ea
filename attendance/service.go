// Package attendance tracks the employee's checked-in state against the
// hr_attendance endpoints, normalizing the primary systray payload and the
// narrower model-call fallback into one canonical state.
package attendance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kbaldwin/punchclock/cache"
	"github.com/kbaldwin/punchclock/internal/jsonx"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/storage"
)

const (
	userDataEndpoint   = "/hr_attendance/attendance_user_data"
	checkInOutEndpoint = "/hr_attendance/systray_check_in_out"

	// manualActionXMLID is the client action the server associates a manual
	// check-in/out with. The action toggles based on current server state,
	// so the same call serves both directions.
	manualActionXMLID = "hr_attendance.hr_attendance_action_my_attendances"

	// CacheTTL bounds staleness of the cached state against UI polling.
	CacheTTL = 60 * time.Second
)

// Check-in status values of State.Status.
const (
	CheckedIn  = "checked_in"
	CheckedOut = "checked_out"
)

// State is an immutable snapshot of the attendance status, replaced
// wholesale on every fetch or toggle. Timestamps are server-format strings;
// empty means the server did not report one.
type State struct {
	Status       string  `json:"status"`
	LastCheckIn  string  `json:"last_check_in"`
	LastCheckOut string  `json:"last_check_out"`
	HoursToday   float64 `json:"hours_today"`
	EmployeeName string  `json:"employee_name"`
}

// Service fetches and toggles attendance state for one employee.
type Service struct {
	client     *rpc.Client
	employeeID int
	cache      *cache.Cache[State]
	logger     *slog.Logger
}

// NewService creates an attendance service. employeeID is required only for
// the model-call fallbacks; zero disables them.
func NewService(client *rpc.Client, employeeID int, store storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:     client,
		employeeID: employeeID,
		cache:      cache.New[State](store, storage.KeyAttendanceCache, CacheTTL),
		logger:     logger,
	}
}

// userDataPayload is the systray endpoint's response shape.
type userDataPayload struct {
	AttendanceState jsonx.String `json:"attendance_state"`
	HoursToday      jsonx.Float  `json:"hours_today"`
	EmployeeName    jsonx.String `json:"employee_name"`
	Attendance      struct {
		CheckIn  jsonx.String `json:"check_in"`
		CheckOut jsonx.String `json:"check_out"`
	} `json:"attendance"`
}

func (p userDataPayload) toState() State {
	return State{
		Status:       string(p.AttendanceState),
		LastCheckIn:  string(p.Attendance.CheckIn),
		LastCheckOut: string(p.Attendance.CheckOut),
		HoursToday:   float64(p.HoursToday),
		EmployeeName: string(p.EmployeeName),
	}
}

// GetStatus returns the current attendance state. With useCache a valid
// cached snapshot short-circuits the network entirely. On a miss the
// primary endpoint is tried first, then the narrower employee-model read;
// when both fail the primary's error is the one reported, since it carries
// the most diagnostic message.
func (s *Service) GetStatus(ctx context.Context, useCache bool) (State, error) {
	if useCache {
		if state, ok := s.cache.Read(); ok {
			return state, nil
		}
	}

	state, primaryErr := s.fetchPrimary(ctx)
	if primaryErr == nil {
		s.cache.Write(state)
		return state, nil
	}

	state, fallbackErr := s.fetchFallback(ctx)
	if fallbackErr != nil {
		s.logger.Debug("attendance fallback also failed",
			slog.String("error", fallbackErr.Error()))
		return State{}, primaryErr
	}
	s.cache.Write(state)
	return state, nil
}

func (s *Service) fetchPrimary(ctx context.Context) (State, error) {
	raw, err := s.client.Call(ctx, userDataEndpoint, map[string]any{})
	if err != nil {
		return State{}, err
	}
	var payload userDataPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return State{}, rpc.ProtocolError("unexpected attendance payload: "+err.Error(), err)
	}
	return payload.toState(), nil
}

// fetchFallback reads the employee record directly. The model exposes no
// per-attendance timestamps, so those default to unset.
func (s *Service) fetchFallback(ctx context.Context) (State, error) {
	raw, err := s.client.Invoke(ctx, "hr.employee", "search_read", []any{
		[]any{[]any{"id", "=", s.employeeID}},
		[]string{"attendance_state", "hours_today", "name"},
	}, map[string]any{"limit": 1})
	if err != nil {
		return State{}, err
	}
	var employees []struct {
		AttendanceState jsonx.String `json:"attendance_state"`
		HoursToday      jsonx.Float  `json:"hours_today"`
		Name            jsonx.String `json:"name"`
	}
	if err := json.Unmarshal(raw, &employees); err != nil {
		return State{}, rpc.ProtocolError("unexpected employee payload: "+err.Error(), err)
	}
	if len(employees) == 0 {
		return State{}, rpc.ProtocolError("employee record not found", nil)
	}
	return State{
		Status:       string(employees[0].AttendanceState),
		HoursToday:   float64(employees[0].HoursToday),
		EmployeeName: string(employees[0].Name),
	}, nil
}

// Toggle flips the check-in state and returns the new snapshot. The primary
// systray endpoint both toggles and reports the new state; the fallback
// drives the manual-attendance action and re-fetches, bypassing the cache
// on both reads so the decision and the result reflect server truth.
func (s *Service) Toggle(ctx context.Context) (State, error) {
	state, primaryErr := s.togglePrimary(ctx)
	if primaryErr == nil {
		s.cache.Write(state)
		return state, nil
	}

	if _, err := s.GetStatus(ctx, false); err != nil {
		return State{}, primaryErr
	}
	if _, err := s.client.Invoke(ctx, "hr.employee", "attendance_manual",
		[]any{[]int{s.employeeID}, manualActionXMLID}, nil); err != nil {
		s.logger.Debug("manual attendance fallback failed",
			slog.String("error", err.Error()))
		return State{}, primaryErr
	}
	state, err := s.GetStatus(ctx, false)
	if err != nil {
		return State{}, primaryErr
	}
	return state, nil
}

func (s *Service) togglePrimary(ctx context.Context) (State, error) {
	raw, err := s.client.Call(ctx, checkInOutEndpoint, map[string]any{})
	if err != nil {
		return State{}, err
	}
	var payload userDataPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return State{}, rpc.ProtocolError("unexpected toggle payload: "+err.Error(), err)
	}
	return payload.toState(), nil
}

// CheckedIn reports the live checked-in state, always against the server.
func (s *Service) CheckedIn(ctx context.Context) (bool, error) {
	state, err := s.GetStatus(ctx, false)
	if err != nil {
		return false, err
	}
	return state.Status == CheckedIn, nil
}

// HoursToday reports the live hours worked today.
func (s *Service) HoursToday(ctx context.Context) (float64, error) {
	state, err := s.GetStatus(ctx, false)
	if err != nil {
		return 0, err
	}
	return state.HoursToday, nil
}
