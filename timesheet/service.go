// Package timesheet drives the server-side work timer on the
// account.analytic.line model: start, assign, update, stop, cancel, and
// running-timer discovery. The server's timer methods return wildly
// different shapes across versions (false, a bare id, or a record), so every
// response is normalized into one Timer at the parse boundary and business
// logic never branches on raw JSON types.
package timesheet

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/kbaldwin/punchclock/cache"
	"github.com/kbaldwin/punchclock/clock"
	"github.com/kbaldwin/punchclock/internal/jsonx"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/storage"
)

const (
	timesheetModel = "account.analytic.line"
	projectModel   = "project.project"
	taskModel      = "project.task"

	// CacheTTL for the running-timer snapshot. Shorter than attendance:
	// timer state changes more often and staleness is more visible.
	CacheTTL = 30 * time.Second
)

// ErrNoRunningTimer is returned by Start when the start action reported no
// id and the follow-up lookup found no running timer either.
var ErrNoRunningTimer = errors.New("no running timer found")

// Timer is the canonical running-timer state. A zero ID means no active
// timer. Invariant: a non-zero ID always carries a non-empty Start; project,
// task and description may stay unset while running, since the server
// creates the timer before details are assigned.
type Timer struct {
	ID          int    `json:"id"`
	ProjectID   int    `json:"project_id"`
	ProjectName string `json:"project_name"`
	TaskID      int    `json:"task_id"`
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
	// Start is the server-format start timestamp (UTC).
	Start string `json:"start"`
}

// Service is the timer state machine against one authenticated client.
type Service struct {
	client *rpc.Client
	cache  *cache.Cache[Timer]
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a timesheet service caching through store.
func NewService(client *rpc.Client, store storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		cache:  cache.New[Timer](store, storage.KeyTimerCache, CacheTTL),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// timerRef is the tagged variant of a timer-start result: no id, a bare
// numeric id, or a record carrying one.
type timerRef struct {
	ID int
	OK bool
}

func parseTimerRef(raw json.RawMessage) timerRef {
	trimmed := string(raw)
	if trimmed == "" || trimmed == "false" || trimmed == "null" {
		return timerRef{}
	}
	var id jsonx.Int
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == 0 {
			return timerRef{}
		}
		return timerRef{ID: int(id), OK: true}
	}
	var record struct {
		ID jsonx.Int `json:"id"`
	}
	if err := json.Unmarshal(raw, &record); err == nil && record.ID != 0 {
		return timerRef{ID: int(record.ID), OK: true}
	}
	return timerRef{}
}

// runningLookup is the get_running_timer response. Start carries elapsed
// minutes, not a timestamp, trustworthy only at the instant of the call.
// Relation fields arrive as a bare id or an [id, name] pair depending on
// the server version.
type runningLookup struct {
	ID          jsonx.Int     `json:"id"`
	Start       jsonx.Float   `json:"start"`
	ProjectID   jsonx.ManyOne `json:"project_id"`
	TaskID      jsonx.ManyOne `json:"task_id"`
	Description jsonx.String  `json:"description"`
}

// Start begins a new timer with no project or task assigned yet. Servers
// answer the start action with false, a bare id, or a record; the false
// path re-discovers the timer through the running-timer lookup and derives
// its start time from the reported elapsed minutes.
func (s *Service) Start(ctx context.Context) (Timer, error) {
	raw, err := s.client.Invoke(ctx, timesheetModel, "action_start_new_timesheet_timer",
		[]any{map[string]any{}}, nil)
	if err != nil {
		return Timer{}, err
	}

	timer := Timer{}
	if ref := parseTimerRef(raw); ref.OK {
		timer.ID = ref.ID
		timer.Start = s.now().UTC().Format(clock.Layout)
	} else {
		lookup, err := s.lookupRunning(ctx)
		if err != nil {
			return Timer{}, err
		}
		if lookup.ID == 0 {
			return Timer{}, ErrNoRunningTimer
		}
		timer.ID = int(lookup.ID)
		elapsed := time.Duration(float64(lookup.Start) * float64(time.Minute))
		timer.Start = s.now().UTC().Add(-elapsed).Format(clock.Layout)
	}

	s.cache.Write(timer)
	return timer, nil
}

// StartWithDetails creates a timesheet line with project and task already
// set, starts its timer, and re-reads the record's authoritative start
// timestamp — a locally synthesized time is never kept once a real one is
// obtainable.
func (s *Service) StartWithDetails(ctx context.Context, projectID, taskID int, description string) (Timer, error) {
	vals := map[string]any{
		"project_id": projectID,
		"name":       description,
	}
	if taskID != 0 {
		vals["task_id"] = taskID
	}
	raw, err := s.client.Invoke(ctx, timesheetModel, "create", []any{vals}, nil)
	if err != nil {
		return Timer{}, err
	}
	var id jsonx.Int
	if err := json.Unmarshal(raw, &id); err != nil || id == 0 {
		return Timer{}, rpc.ProtocolError("timesheet create returned no id", err)
	}

	if _, err := s.client.Invoke(ctx, timesheetModel, "action_timer_start",
		[]any{[]int{int(id)}}, nil); err != nil {
		return Timer{}, err
	}

	start, err := s.readTimerStart(ctx, int(id))
	if err != nil {
		return Timer{}, err
	}

	timer := Timer{
		ID:          int(id),
		ProjectID:   projectID,
		ProjectName: s.resolveName(ctx, projectModel, projectID),
		TaskID:      taskID,
		TaskName:    s.resolveName(ctx, taskModel, taskID),
		Description: description,
		Start:       start,
	}
	s.cache.Write(timer)
	return timer, nil
}

// Assign attaches project, task and optional description to an already
// running timer, mimicking the form's change-then-save interaction: an
// onchange for the project, one for the task, then the persisting write.
func (s *Service) Assign(ctx context.Context, timerID, projectID, taskID int, description string) error {
	if err := s.onchange(ctx, timerID, "project_id", map[string]any{"project_id": projectID}); err != nil {
		return err
	}
	if err := s.onchange(ctx, timerID, "task_id", map[string]any{
		"project_id": projectID,
		"task_id":    taskID,
	}); err != nil {
		return err
	}

	vals := map[string]any{"task_id": taskID}
	if description != "" {
		vals["name"] = description
	}
	if _, err := s.client.Invoke(ctx, timesheetModel, "write",
		[]any{[]int{timerID}, vals}, nil); err != nil {
		return err
	}

	// Patch the cached snapshot only when it describes this timer; a stale
	// or foreign entry is left for the next fetch to replace.
	if cached, ok := s.cache.Read(); ok && cached.ID == timerID {
		cached.ProjectID = projectID
		cached.ProjectName = s.resolveName(ctx, projectModel, projectID)
		cached.TaskID = taskID
		cached.TaskName = s.resolveName(ctx, taskModel, taskID)
		if description != "" {
			cached.Description = description
		}
		s.cache.Write(cached)
	}
	return nil
}

// UpdateOptions is the sparse patch for Update; nil fields are untouched.
type UpdateOptions struct {
	ProjectID   *int
	TaskID      *int
	Description *string
}

// Update writes only the supplied fields and patches the cached entry in
// place rather than re-fetching.
func (s *Service) Update(ctx context.Context, timerID int, opts UpdateOptions) error {
	vals := map[string]any{}
	if opts.ProjectID != nil {
		vals["project_id"] = *opts.ProjectID
	}
	if opts.TaskID != nil {
		vals["task_id"] = *opts.TaskID
	}
	if opts.Description != nil {
		vals["name"] = *opts.Description
	}
	if len(vals) == 0 {
		return nil
	}

	if _, err := s.client.Invoke(ctx, timesheetModel, "write",
		[]any{[]int{timerID}, vals}, nil); err != nil {
		return err
	}

	if cached, ok := s.cache.Read(); ok && cached.ID == timerID {
		if opts.ProjectID != nil {
			cached.ProjectID = *opts.ProjectID
			cached.ProjectName = s.resolveName(ctx, projectModel, *opts.ProjectID)
		}
		if opts.TaskID != nil {
			cached.TaskID = *opts.TaskID
			cached.TaskName = s.resolveName(ctx, taskModel, *opts.TaskID)
		}
		if opts.Description != nil {
			cached.Description = *opts.Description
		}
		s.cache.Write(cached)
	}
	return nil
}

// Stop ends the timer, persisting the accumulated time, and returns the
// recorded duration in seconds. The cache is cleared immediately so the
// next read cannot see a phantom running timer. A missing read-back yields
// duration 0 rather than a failure: the stop itself already succeeded.
func (s *Service) Stop(ctx context.Context, timerID int) (int64, error) {
	if _, err := s.client.Invoke(ctx, timesheetModel, "action_timer_stop",
		[]any{[]int{timerID}, true}, nil); err != nil {
		return 0, err
	}
	s.cache.Invalidate()

	raw, err := s.client.Invoke(ctx, timesheetModel, "read",
		[]any{[]int{timerID}, []string{"unit_amount"}}, nil)
	if err != nil {
		s.logger.Debug("duration read-back failed after stop",
			slog.String("error", err.Error()))
		return 0, nil
	}
	var records []struct {
		UnitAmount jsonx.Float `json:"unit_amount"`
	}
	if err := json.Unmarshal(raw, &records); err != nil || len(records) == 0 {
		return 0, nil
	}
	return int64(float64(records[0].UnitAmount) * 3600), nil
}

// Cancel discards the timer record entirely. No duration is reported.
func (s *Service) Cancel(ctx context.Context, timerID int) error {
	if _, err := s.client.Invoke(ctx, timesheetModel, "action_timer_unlink",
		[]any{[]int{timerID}}, nil); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// Running returns the current running timer, or nil when none exists —
// absence is an expected steady state, never an error. Lookup failures also
// report nil so transient network trouble cannot masquerade as a session
// problem in the UI.
func (s *Service) Running(ctx context.Context, useCache bool) (*Timer, error) {
	if useCache {
		if cached, ok := s.cache.Read(); ok {
			return &cached, nil
		}
	}
	timer, _, err := s.fetch(ctx)
	return timer, err
}

// Sync fetches the running timer fresh and derives the server-minus-local
// clock offset, anchoring a locally ticking display to server time. The
// lookup reports elapsed minutes at the instant of the call; adding them to
// the record's start yields the server's current time at that instant.
func (s *Service) Sync(ctx context.Context) (*Timer, clock.Offset, error) {
	return s.fetch(ctx)
}

func (s *Service) fetch(ctx context.Context) (*Timer, clock.Offset, error) {
	localAt := s.now()

	lookup, err := s.lookupRunning(ctx)
	if err != nil {
		s.logger.Debug("running-timer lookup failed",
			slog.String("error", err.Error()))
		return nil, clock.Offset{}, nil
	}
	if lookup.ID == 0 {
		s.cache.Invalidate()
		return nil, clock.Offset{}, nil
	}

	timer := Timer{
		ID:          int(lookup.ID),
		ProjectID:   lookup.ProjectID.ID,
		TaskID:      lookup.TaskID.ID,
		Description: string(lookup.Description),
	}

	// The lookup's elapsed-minutes value goes stale the moment it is
	// reported; the record's own start field is authoritative.
	start, err := s.readTimerStart(ctx, timer.ID)
	if err != nil {
		s.logger.Debug("timer start read failed", slog.String("error", err.Error()))
		return nil, clock.Offset{}, nil
	}
	timer.Start = start

	var offset clock.Offset
	if startAt, err := clock.Parse(timer.Start); err == nil {
		serverNow := startAt.Add(time.Duration(float64(lookup.Start) * float64(time.Minute)))
		if o, err := clock.NewOffset(serverNow.Format(clock.Layout), localAt); err == nil {
			offset = o
		}
	}

	if timer.ProjectID != 0 {
		timer.ProjectName = s.resolveName(ctx, projectModel, timer.ProjectID)
	}
	if timer.TaskID != 0 {
		timer.TaskName = s.resolveName(ctx, taskModel, timer.TaskID)
	}

	s.cache.Write(timer)
	return &timer, offset, nil
}

func (s *Service) lookupRunning(ctx context.Context) (runningLookup, error) {
	raw, err := s.client.Invoke(ctx, timesheetModel, "get_running_timer", nil, nil)
	if err != nil {
		return runningLookup{}, err
	}
	trimmed := string(raw)
	if trimmed == "" || trimmed == "false" || trimmed == "null" {
		return runningLookup{}, nil
	}
	var lookup runningLookup
	if err := json.Unmarshal(raw, &lookup); err != nil {
		return runningLookup{}, rpc.ProtocolError("unexpected running-timer payload: "+err.Error(), err)
	}
	return lookup, nil
}

func (s *Service) readTimerStart(ctx context.Context, timerID int) (string, error) {
	raw, err := s.client.Invoke(ctx, timesheetModel, "read",
		[]any{[]int{timerID}, []string{"timer_start"}}, nil)
	if err != nil {
		return "", err
	}
	var records []struct {
		TimerStart jsonx.String `json:"timer_start"`
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return "", rpc.ProtocolError("unexpected timer read payload: "+err.Error(), err)
	}
	if len(records) == 0 || records[0].TimerStart == "" {
		// The record exists but carries no start; fall back to now so the
		// running invariant (id implies start) still holds.
		return s.now().UTC().Format(clock.Layout), nil
	}
	return string(records[0].TimerStart), nil
}

// resolveName looks up a display name live; there is deliberately no name
// cache, so renames on the server show up on the next call.
func (s *Service) resolveName(ctx context.Context, model string, id int) string {
	if id == 0 {
		return ""
	}
	raw, err := s.client.Invoke(ctx, model, "search_read", []any{
		[]any{[]any{"id", "=", id}},
		[]string{"id", "name"},
	}, map[string]any{"limit": 1})
	if err != nil {
		s.logger.Debug("name resolution failed",
			slog.String("model", model), slog.Int("id", id),
			slog.String("error", err.Error()))
		return ""
	}
	var records []struct {
		Name jsonx.String `json:"name"`
	}
	if err := json.Unmarshal(raw, &records); err != nil || len(records) == 0 {
		return ""
	}
	return string(records[0].Name)
}

// onchange mirrors the web form's field-change round trip before a save.
func (s *Service) onchange(ctx context.Context, timerID int, field string, values map[string]any) error {
	_, err := s.client.Invoke(ctx, timesheetModel, "onchange", []any{
		[]int{timerID},
		values,
		field,
		map[string]any{field: "1"},
	}, nil)
	return err
}
