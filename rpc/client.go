// Package rpc implements the JSON-RPC dialect spoken by Odoo's /web
// controllers: POST requests with a {"jsonrpc","method":"call","params","id"}
// envelope, authenticated by a session cookie.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CallKwEndpoint is the generic model-method dispatch endpoint.
const CallKwEndpoint = "/web/dataset/call_kw"

// Cookie is one name=value pair tracked by the client. Order is preserved
// so the outgoing Cookie header is stable across calls.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client issues JSON-RPC calls against one Odoo base URL, carrying the
// session cookie set between calls. It is safe for concurrent use; two
// concurrent mutations against the same server record still race with
// last-write-wins semantics, which is acceptable for a single interactive
// user.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *Metrics

	nextID atomic.Int64

	mu      sync.Mutex
	cookies []Cookie
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. The transport itself
// enforces no timeout; set one here or carry a deadline on the context.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCookies seeds the cookie set, typically from a persisted session.
func WithCookies(cookies []Cookie) Option {
	return func(c *Client) {
		c.cookies = append([]Cookie(nil), cookies...)
	}
}

// WithSessionToken synthesizes a single session_id cookie from token.
// Ignored when empty.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.setCookie("session_id", token)
		}
	}
}

// WithLogger sets the structured logger. If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLimiter rate-limits outgoing calls. Nil disables limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records per-call counters and latency.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for baseURL. A trailing slash on the base URL is
// stripped so endpoint paths can always begin with "/".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// BaseURL returns the normalized base URL the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Cookies returns a copy of the current cookie set.
func (c *Client) Cookies() []Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Cookie(nil), c.cookies...)
}

// CookieValue returns the value of the named cookie, or "" when absent.
func (c *Client) CookieValue(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range c.cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) setCookie(name, value string) {
	for i, ck := range c.cookies {
		if ck.Name == name {
			c.cookies[i].Value = value
			return
		}
	}
	c.cookies = append(c.cookies, Cookie{Name: name, Value: value})
}

type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *wireError      `json:"error"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Message string `json:"message"`
		Debug   string `json:"debug"`
	} `json:"data"`
}

// Call POSTs a JSON-RPC envelope to endpoint and returns the raw result.
// Failures surface as *Error: 401/403 and false-results on session
// endpoints become KindSessionExpired, everything else KindProtocol.
func (c *Client) Call(ctx context.Context, endpoint string, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, endpoint, params)
	if c.metrics != nil {
		c.metrics.observe(endpoint, err, time.Since(start))
	}
	return result, err
}

func (c *Client) call(ctx context.Context, endpoint string, params any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindProtocol, Message: "rate limiter: " + err.Error(), Network: true, cause: err}
		}
	}

	id := c.nextID.Add(1)
	body, err := json.Marshal(envelope{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Message: "encoding request: " + err.Error(), Network: true, cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Message: "building request: " + err.Error(), Network: true, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if header := c.cookieHeader(); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Message: "network error: " + err.Error(), Network: true, cause: err}
	}
	defer resp.Body.Close()

	c.mergeCookies(resp.Header.Values("Set-Cookie"))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, SessionExpired(fmt.Sprintf("session rejected with HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:    KindProtocol,
			Message: fmt.Sprintf("server returned HTTP %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Message: "reading response: " + err.Error(), Network: true, cause: err}
	}
	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Kind: KindProtocol, Message: "malformed response: " + err.Error(), Network: true, cause: err}
	}

	if parsed.Error != nil {
		msg := parsed.Error.Message
		if parsed.Error.Data.Message != "" {
			msg = parsed.Error.Data.Message
		}
		return nil, &Error{
			Kind:    KindProtocol,
			Message: msg,
			Code:    parsed.Error.Code,
			Debug:   parsed.Error.Data.Debug,
		}
	}

	// Session endpoints report an expired session as a bare false result.
	// The segment check keeps legitimately-false results from unrelated
	// endpoints out of this path.
	if bytes.Equal(bytes.TrimSpace(parsed.Result), []byte("false")) && isSessionEndpoint(endpoint) {
		return nil, SessionExpired("session endpoint returned false")
	}

	return parsed.Result, nil
}

// Invoke calls method on an Odoo model through the call_kw endpoint. A nil
// kwargs is allowed; an empty "context" entry is injected when the caller
// did not supply one, since the server rejects call_kw without it.
func (c *Client) Invoke(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if _, ok := kwargs["context"]; !ok {
		kwargs["context"] = map[string]any{}
	}
	return c.Call(ctx, CallKwEndpoint, map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": kwargs,
	})
}

func (c *Client) cookieHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, 0, len(c.cookies))
	for _, ck := range c.cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func (c *Client) mergeCookies(setCookies []string) {
	if len(setCookies) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, header := range setCookies {
		for _, ck := range parseSetCookie(header) {
			c.setCookie(ck.Name, ck.Value)
		}
	}
}

// parseSetCookie extracts name=value pairs from a Set-Cookie header value.
// Proxies occasionally fold several cookies into one header joined by
// commas, while attribute values like Expires legitimately contain commas
// themselves, so the value is split on a comma only when what follows looks
// like a new name= pair.
func parseSetCookie(header string) []Cookie {
	var cookies []Cookie
	for _, part := range splitCookieHeader(header) {
		pair := part
		if i := strings.Index(pair, ";"); i >= 0 {
			pair = pair[:i]
		}
		pair = strings.TrimSpace(pair)
		eq := strings.Index(pair, "=")
		if eq <= 0 {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:  strings.TrimSpace(pair[:eq]),
			Value: strings.TrimSpace(pair[eq+1:]),
		})
	}
	return cookies
}

var newCookiePattern = func(s string) bool {
	eq := strings.Index(s, "=")
	if eq <= 0 {
		return false
	}
	name := strings.TrimSpace(s[:eq])
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == ' ' || r == ';' || r == ',' {
			return false
		}
	}
	return true
}

func splitCookieHeader(header string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] != ',' {
			continue
		}
		rest := strings.TrimSpace(header[i+1:])
		// Only a comma followed by a fresh name= pair starts a new cookie.
		if head, _, found := strings.Cut(rest, ";"); found {
			rest = head
		}
		if newCookiePattern(rest) {
			parts = append(parts, header[start:i])
			start = i + 1
		}
	}
	parts = append(parts, header[start:])
	return parts
}

func isSessionEndpoint(endpoint string) bool {
	for _, segment := range strings.Split(strings.Trim(endpoint, "/"), "/") {
		if strings.Contains(segment, "session") {
			return true
		}
	}
	return false
}
