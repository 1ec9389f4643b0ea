// Package session owns the login lifecycle: database resolution, credential
// exchange, session persistence, logout, and reconstruction of an
// authenticated transport from the stored record.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/kbaldwin/punchclock/internal/jsonx"
	"github.com/kbaldwin/punchclock/rpc"
	"github.com/kbaldwin/punchclock/storage"
)

const (
	authenticateEndpoint = "/web/session/authenticate"
	destroyEndpoint      = "/web/session/destroy"
	databaseListEndpoint = "/web/database/list"

	// multiTenantSuffix marks hosted instances whose database name is
	// derived from the subdomain.
	multiTenantSuffix = ".odoo.com"
)

// Manager owns login, logout and reconstruction of authenticated clients.
type Manager struct {
	store      storage.Store
	logger     *slog.Logger
	clientOpts []rpc.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClientOptions forwards options (metrics, rate limiter, HTTP client)
// to every transport the manager constructs.
func WithClientOptions(opts ...rpc.Option) Option {
	return func(m *Manager) { m.clientOpts = append(m.clientOpts, opts...) }
}

// NewManager creates a Manager persisting through store.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{store: store}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

type authResult struct {
	UID       jsonx.Int    `json:"uid"`
	SessionID jsonx.String `json:"session_id"`
	CompanyID jsonx.Int    `json:"company_id"`
	Username  jsonx.String `json:"username"`
}

// Login authenticates against baseURL and persists the resulting session.
// The record is saved before the call returns, so a crash after Login never
// loses an authenticated session. Failures before the session is secured
// are reported as a wrapped "login failed" error carrying the underlying
// message; the employee lookup alone is best-effort and never fails a login.
func (m *Manager) Login(ctx context.Context, baseURL, username, password string) (*Info, error) {
	normalized := rpc.NormalizeURL(baseURL)
	if !rpc.ValidURL(normalized) {
		return nil, rpc.ValidationError(fmt.Sprintf("invalid server URL %q", baseURL))
	}

	client := rpc.New(normalized, m.clientOpts...)

	db := m.resolveDatabase(ctx, client, normalized)

	raw, err := client.Call(ctx, authenticateEndpoint, map[string]any{
		"db":       db,
		"login":    username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	var auth authResult
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, fmt.Errorf("login failed: unexpected authenticate response: %w", err)
	}
	if auth.UID == 0 {
		return nil, fmt.Errorf("login failed: %w", rpc.ProtocolError("invalid credentials", nil))
	}

	token := string(auth.SessionID)
	if token == "" {
		token = client.CookieValue("session_id")
	}

	info := &Info{
		Token:     token,
		BaseURL:   normalized,
		UserID:    int(auth.UID),
		CompanyID: int(auth.CompanyID),
		Username:  string(auth.Username),
		Cookies:   client.Cookies(),
	}
	if info.Username == "" {
		info.Username = username
	}

	// Best effort: a missing employee record must not fail the login.
	if id, name, err := m.lookupEmployee(ctx, client, int(auth.UID)); err != nil {
		m.logger.Warn("employee lookup failed, saving session without employee",
			slog.String("error", err.Error()))
	} else {
		info.EmployeeID = id
		info.EmployeeName = name
	}

	if err := m.save(info); err != nil {
		return nil, fmt.Errorf("login failed: persisting session: %w", err)
	}
	m.saveUser(info)
	return info, nil
}

// resolveDatabase picks the database name to authenticate against. Hosted
// multi-tenant instances derive it from the subdomain when the listing
// endpoint is unavailable or ambiguous; self-hosted instances fall back to
// an empty name so the server auto-detects.
func (m *Manager) resolveDatabase(ctx context.Context, client *rpc.Client, baseURL string) string {
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Hostname()
	}

	names := m.listDatabases(ctx, client)

	if strings.HasSuffix(host, multiTenantSuffix) {
		subdomain := strings.TrimSuffix(host, multiTenantSuffix)
		switch {
		case len(names) == 1:
			return names[0]
		case len(names) > 1:
			for _, name := range names {
				if strings.HasPrefix(name, subdomain) {
					return name
				}
			}
			return names[0]
		default:
			return subdomain
		}
	}

	if len(names) == 1 {
		return names[0]
	}
	return ""
}

func (m *Manager) listDatabases(ctx context.Context, client *rpc.Client) []string {
	raw, err := client.Call(ctx, databaseListEndpoint, map[string]any{})
	if err != nil {
		m.logger.Debug("database listing unavailable", slog.String("error", err.Error()))
		return nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil
	}
	return names
}

func (m *Manager) lookupEmployee(ctx context.Context, client *rpc.Client, uid int) (int, string, error) {
	raw, err := client.Invoke(ctx, "hr.employee", "search_read", []any{
		[]any{[]any{"user_id", "=", uid}},
		[]string{"id", "name"},
	}, map[string]any{"limit": 1})
	if err != nil {
		return 0, "", err
	}
	var employees []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &employees); err != nil {
		return 0, "", err
	}
	if len(employees) == 0 {
		return 0, "", fmt.Errorf("no employee linked to user %d", uid)
	}
	return employees[0].ID, employees[0].Name, nil
}

// Logout destroys the server-side session best-effort and unconditionally
// clears the local session and all cached attendance and timer state.
// It never fails: a dead server must not trap the user in a logged-in UI.
func (m *Manager) Logout(ctx context.Context) {
	if info, ok := m.read(); ok {
		client := m.clientFor(info)
		if _, err := client.Call(ctx, destroyEndpoint, map[string]any{}); err != nil {
			m.logger.Debug("server-side session destroy failed",
				slog.String("error", err.Error()))
		}
	}
	_ = m.store.Remove(storage.KeySession)
	_ = m.store.Remove(storage.KeyUserInfo)
	_ = m.store.Remove(storage.KeyAttendanceCache)
	_ = m.store.Remove(storage.KeyTimerCache)
}

// Client reconstructs an authenticated transport from the stored session.
// The absence of a stored session surfaces as the typed session-expired
// condition; this is the single point that turns "not logged in" into
// something every downstream service can branch on.
func (m *Manager) Client() (*rpc.Client, error) {
	info, ok := m.read()
	if !ok {
		return nil, rpc.SessionExpired("not logged in")
	}
	return m.clientFor(info), nil
}

func (m *Manager) clientFor(info *Info) *rpc.Client {
	opts := append([]rpc.Option{}, m.clientOpts...)
	if len(info.Cookies) > 0 {
		opts = append(opts, rpc.WithCookies(info.Cookies))
	} else {
		opts = append(opts, rpc.WithSessionToken(info.Token))
	}
	return rpc.New(info.BaseURL, opts...)
}

// Active reports whether a session record exists locally. No server round
// trip: the record may still be rejected by the server later, which then
// surfaces as session-expired from the failing call.
func (m *Manager) Active() bool {
	_, ok := m.read()
	return ok
}

// Current returns the stored session record, if any.
func (m *Manager) Current() (*Info, bool) {
	return m.read()
}

// User returns the stored identity record. When only the session record
// exists the identity is derived from it instead.
func (m *Manager) User() (*UserInfo, bool) {
	if raw, ok := m.store.Get(storage.KeyUserInfo); ok {
		var user UserInfo
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			return &user, true
		}
	}
	info, ok := m.read()
	if !ok {
		return nil, false
	}
	return &UserInfo{
		UserID:       info.UserID,
		Username:     info.Username,
		CompanyID:    info.CompanyID,
		EmployeeID:   info.EmployeeID,
		EmployeeName: info.EmployeeName,
	}, true
}

func (m *Manager) save(info *Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.store.Set(storage.KeySession, string(raw))
}

// saveUser persists the identity record. Best effort: the session record is
// already secured, and User falls back to it.
func (m *Manager) saveUser(info *Info) {
	raw, err := json.Marshal(UserInfo{
		UserID:       info.UserID,
		Username:     info.Username,
		CompanyID:    info.CompanyID,
		EmployeeID:   info.EmployeeID,
		EmployeeName: info.EmployeeName,
	})
	if err != nil {
		return
	}
	_ = m.store.Set(storage.KeyUserInfo, string(raw))
}

func (m *Manager) read() (*Info, bool) {
	raw, ok := m.store.Get(storage.KeySession)
	if !ok {
		return nil, false
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, false
	}
	return &info, true
}
