package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbaldwin/punchclock/clock"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/session"
	"github.com/kbaldwin/punchclock/storage"
	"github.com/kbaldwin/punchclock/storage/memory"
)

func newTestAPI(t *testing.T, store storage.Store) http.Handler {
	t.Helper()
	return New(session.NewManager(store), store).Router()
}

// seedSession plants a stored login pointing at upstream.
func seedSession(t *testing.T, store storage.Store, upstream string) {
	t.Helper()
	raw, err := json.Marshal(session.Info{
		Token:        "tok",
		BaseURL:      upstream,
		UserID:       5,
		EmployeeID:   31,
		EmployeeName: "Ada",
		Username:     "ada@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(storage.KeySession, string(raw)))
}

// upstreamStub answers call_kw requests by "model.method".
func upstreamStub(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Params struct {
				Model  string `json:"model"`
				Method string `json:"method"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		result, ok := results[env.Params.Model+"."+env.Params.Method]
		if !ok {
			result = false
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	router := newTestAPI(t, memory.NewStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestAPI(t, memory.NewStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionInfoLoggedOut(t *testing.T) {
	router := newTestAPI(t, memory.NewStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.LoggedIn)
	assert.Empty(t, resp.Username)
}

func TestSessionInfoLoggedIn(t *testing.T) {
	store := memory.NewStore()
	seedSession(t, store, "https://acme.example.com")
	router := newTestAPI(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.LoggedIn)
	assert.Equal(t, "ada@example.com", resp.Username)
	assert.Equal(t, "Ada", resp.Employee)
	assert.Equal(t, "https://acme.example.com", resp.Server)
}

func TestTimerRequiresSession(t *testing.T) {
	router := newTestAPI(t, memory.NewStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timer", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, rpc.KindSessionExpired.String(), resp.Kind)
}

func TestTimerNoneRunning(t *testing.T) {
	store := memory.NewStore()
	upstream := upstreamStub(t, map[string]any{
		"account.analytic.line.get_running_timer": false,
	})
	seedSession(t, store, upstream.URL)
	router := newTestAPI(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timer", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp timerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Nil(t, resp.Timer)
}

func TestTimerRunningReportsElapsed(t *testing.T) {
	start := time.Now().UTC().Add(-90 * time.Second).Format(clock.Layout)
	store := memory.NewStore()
	upstream := upstreamStub(t, map[string]any{
		"account.analytic.line.get_running_timer": map[string]any{"id": 42, "start": 1},
		"account.analytic.line.read": []map[string]any{
			{"id": 42, "timer_start": start},
		},
	})
	seedSession(t, store, upstream.URL)
	router := newTestAPI(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timer", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp timerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	require.NotNil(t, resp.Timer)
	assert.Equal(t, 42, resp.Timer.ID)
	assert.GreaterOrEqual(t, resp.Elapsed, int64(90))
	assert.Less(t, resp.Elapsed, int64(300))
}

func TestAttendanceToggle(t *testing.T) {
	store := memory.NewStore()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]any{
				"attendance_state": "checked_in",
				"hours_today":      1.5,
				"attendance": map[string]any{
					"check_in": "2026-03-01 08:00:00",
				},
				"employee_name": "Ada",
			},
		})
	}))
	t.Cleanup(upstream.Close)
	seedSession(t, store, upstream.URL)
	router := newTestAPI(t, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/attendance/toggle", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		Status     string  `json:"status"`
		HoursToday float64 `json:"hours_today"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "checked_in", state.Status)
	assert.Equal(t, 1.5, state.HoursToday)
}
