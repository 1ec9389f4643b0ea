package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/storage"
	"github.com/kbaldwin/punchclock/storage/memory"
)

// fakeOdoo is a minimal JSON-RPC server: one handler per endpoint path,
// plus a per-path call counter.
type fakeOdoo struct {
	t        *testing.T
	handlers map[string]func(w http.ResponseWriter, params map[string]any)
	calls    map[string]int
	srv      *httptest.Server
}

func newFakeOdoo(t *testing.T) *fakeOdoo {
	f := &fakeOdoo{
		t:        t,
		handlers: make(map[string]func(http.ResponseWriter, map[string]any)),
		calls:    make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		f.calls[r.URL.Path]++
		h, ok := f.handlers[r.URL.Path]
		if !ok {
			writeRPCError(w, 404, "no handler for "+r.URL.Path)
			return
		}
		h(w, env.Params)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOdoo) handle(path string, h func(w http.ResponseWriter, params map[string]any)) {
	f.handlers[path] = h
}

func (f *fakeOdoo) result(path string, result any) {
	f.handle(path, func(w http.ResponseWriter, _ map[string]any) {
		writeRPCResult(w, result)
	})
}

func writeRPCResult(w http.ResponseWriter, result any) {
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
}

func writeRPCError(w http.ResponseWriter, code int, message string) {
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0", "id": 1,
		"error": map[string]any{"code": code, "message": message},
	})
}

func employeeResult(id int, name string) any {
	return []map[string]any{{"id": id, "name": name}}
}

func TestLoginStoresSession(t *testing.T) {
	f := newFakeOdoo(t)
	f.result("/web/database/list", []string{"production"})
	f.handle("/web/session/authenticate", func(w http.ResponseWriter, params map[string]any) {
		assert.Equal(t, "production", params["db"])
		assert.Equal(t, "alice", params["login"])
		assert.Equal(t, "hunter2", params["password"])
		writeRPCResult(w, map[string]any{
			"uid": 7, "session_id": "tok-123", "company_id": 1, "username": "alice",
		})
	})
	f.result(rpc.CallKwEndpoint, employeeResult(31, "Alice Smith"))

	store := memory.NewStore()
	m := NewManager(store)

	info, err := m.Login(context.Background(), f.srv.URL, "alice", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "tok-123", info.Token)
	assert.Equal(t, 7, info.UserID)
	assert.Equal(t, 31, info.EmployeeID)
	assert.Equal(t, "Alice Smith", info.EmployeeName)

	raw, ok := store.Get(storage.KeySession)
	require.True(t, ok, "session must be persisted before Login returns")
	var persisted Info
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, *info, persisted)
	assert.True(t, m.Active())

	user, ok := m.User()
	require.True(t, ok, "identity record must be persisted alongside the session")
	assert.Equal(t, UserInfo{
		UserID:       7,
		Username:     "alice",
		CompanyID:    1,
		EmployeeID:   31,
		EmployeeName: "Alice Smith",
	}, *user)

	raw, ok = store.Get(storage.KeyUserInfo)
	require.True(t, ok)
	assert.NotContains(t, raw, "tok-123", "identity record must not carry the token")
}

func TestUserFallsBackToSessionRecord(t *testing.T) {
	store := memory.NewStore()
	raw, err := json.Marshal(Info{
		Token: "tok", BaseURL: "https://acme.example.com",
		UserID: 7, EmployeeID: 31, EmployeeName: "Alice Smith", Username: "alice",
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(storage.KeySession, string(raw)))

	user, ok := NewManager(store).User()
	require.True(t, ok)
	assert.Equal(t, 31, user.EmployeeID)
	assert.Equal(t, "alice", user.Username)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFakeOdoo(t)
	f.result("/web/database/list", []string{"db"})
	f.result("/web/session/authenticate", map[string]any{"uid": false})

	m := NewManager(memory.NewStore())
	_, err := m.Login(context.Background(), f.srv.URL, "alice", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.False(t, m.Active())
}

func TestLoginInvalidURL(t *testing.T) {
	m := NewManager(memory.NewStore())
	_, err := m.Login(context.Background(), "http://bad url with spaces", "u", "p")
	assert.True(t, rpc.IsValidation(err))
}

func TestLoginTokenFallsBackToCookie(t *testing.T) {
	f := newFakeOdoo(t)
	f.result("/web/database/list", []string{"db"})
	f.handle("/web/session/authenticate", func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Add("Set-Cookie", "session_id=cookie-tok; Path=/; HttpOnly")
		writeRPCResult(w, map[string]any{"uid": 7, "username": "alice"})
	})
	f.result(rpc.CallKwEndpoint, employeeResult(31, "Alice Smith"))

	m := NewManager(memory.NewStore())
	info, err := m.Login(context.Background(), f.srv.URL, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "cookie-tok", info.Token)
}

func TestLoginSurvivesEmployeeLookupFailure(t *testing.T) {
	f := newFakeOdoo(t)
	f.result("/web/database/list", []string{"db"})
	f.result("/web/session/authenticate", map[string]any{"uid": 7, "session_id": "tok", "username": "alice"})
	f.handle(rpc.CallKwEndpoint, func(w http.ResponseWriter, _ map[string]any) {
		writeRPCError(w, 200, "hr module not installed")
	})

	m := NewManager(memory.NewStore())
	info, err := m.Login(context.Background(), f.srv.URL, "alice", "pw")
	require.NoError(t, err, "employee lookup is best-effort")
	assert.Zero(t, info.EmployeeID)
	assert.True(t, m.Active())
}

func TestResolveDatabase(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		listing any // nil means the endpoint errors
		want    string
	}{
		{"hosted single database", "https://acme.odoo.com", []string{"acme"}, "acme"},
		{"hosted subdomain prefix wins", "https://acme.odoo.com", []string{"other", "acme-prod"}, "acme-prod"},
		{"hosted no prefix match takes first", "https://acme.odoo.com", []string{"alpha", "beta"}, "alpha"},
		{"hosted listing unavailable falls back to subdomain", "https://acme.odoo.com", nil, "acme"},
		{"hosted empty listing falls back to subdomain", "https://acme.odoo.com", []string{}, "acme"},
		{"self-hosted single database", "https://erp.example.com", []string{"main"}, "main"},
		{"self-hosted ambiguous lets server pick", "https://erp.example.com", []string{"a", "b"}, ""},
		{"self-hosted listing unavailable lets server pick", "https://erp.example.com", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeOdoo(t)
			if tt.listing != nil {
				f.result("/web/database/list", tt.listing)
			} else {
				f.handle("/web/database/list", func(w http.ResponseWriter, _ map[string]any) {
					writeRPCError(w, 404, "database manager disabled")
				})
			}
			m := NewManager(memory.NewStore())
			client := rpc.New(f.srv.URL)
			got := m.resolveDatabase(context.Background(), client, tt.baseURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogoutClearsEverythingEvenWhenDestroyFails(t *testing.T) {
	f := newFakeOdoo(t)
	f.result("/web/database/list", []string{"db"})
	f.result("/web/session/authenticate", map[string]any{"uid": 7, "session_id": "tok", "username": "a"})
	f.result(rpc.CallKwEndpoint, employeeResult(31, "A"))
	f.handle("/web/session/destroy", func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := memory.NewStore()
	m := NewManager(store)
	_, err := m.Login(context.Background(), f.srv.URL, "a", "p")
	require.NoError(t, err)

	// Seed cache keys so the clearing is observable.
	store.Set(storage.KeyAttendanceCache, "{}")
	store.Set(storage.KeyTimerCache, "{}")

	m.Logout(context.Background())

	assert.False(t, m.Active())
	for _, key := range []string{storage.KeySession, storage.KeyUserInfo,
		storage.KeyAttendanceCache, storage.KeyTimerCache} {
		_, ok := store.Get(key)
		assert.False(t, ok, "key %s should be cleared", key)
	}
	assert.Equal(t, 1, f.calls["/web/session/destroy"])
}

func TestClientWithoutSessionIsSessionExpired(t *testing.T) {
	m := NewManager(memory.NewStore())
	_, err := m.Client()
	assert.True(t, rpc.IsSessionExpired(err))
}

func TestClientReconstructsTransport(t *testing.T) {
	store := memory.NewStore()
	info := Info{
		Token:   "tok",
		BaseURL: "https://erp.example.com",
		Cookies: []rpc.Cookie{{Name: "session_id", Value: "tok"}},
	}
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	store.Set(storage.KeySession, string(raw))

	m := NewManager(store)
	client, err := m.Client()
	require.NoError(t, err)
	assert.Equal(t, "https://erp.example.com", client.BaseURL())
	assert.Equal(t, "tok", client.CookieValue("session_id"))
}
