// Package client is a Go client for the admin authentication API.  Each
// Client carries its own bearer token, CSRF token and cookie jar, so any
// number of clients can run in one process without sharing credentials.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"
)

const csrfHeader = "X-CSRF-Token"

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status      int
	Code        string
	Message     string
	Details     []FieldError
	LockedUntil *time.Time
	Refresh     bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// FieldError is one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// IsCode reports whether err is an *APIError with code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

type envelope struct {
	Error struct {
		Code        string       `json:"code"`
		Message     string       `json:"message"`
		Details     []FieldError `json:"details"`
		LockedUntil *time.Time   `json:"lockedUntil"`
		Refresh     *bool        `json:"refresh"`
	} `json:"error"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.  Its Jar, if nil, is set to
// a fresh cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to one server on behalf of one principal.  It is safe for
// concurrent use.
type Client struct {
	base string
	http *http.Client

	mu     sync.Mutex
	csrf   string
	bearer string
}

// New returns a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 15 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Token returns the bearer token from the last login, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearer
}

// SetToken installs a bearer token obtained elsewhere.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.bearer = tok
	c.mu.Unlock()
}

// RefreshCSRF fetches a new anti-forgery token and stores it on c.
func (c *Client) RefreshCSRF(ctx context.Context) error {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.send(ctx, http.MethodGet, "/v1/csrf-token", nil, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.csrf = out.CSRFToken
	c.mu.Unlock()
	return nil
}

// Profile is the public view of a user.
type Profile struct {
	ID        uint64     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

// Session is one active login.
type Session struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// LoginResult is the successful login response.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID uint64    `json:"session_id"`
	User      Profile   `json:"user"`
}

// Register creates an account and returns its id.
func (c *Client) Register(ctx context.Context, username, email, password string) (uint64, error) {
	var out struct {
		UserID uint64 `json:"userId"`
	}
	in := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/register", in, &out); err != nil {
		return 0, err
	}
	return out.UserID, nil
}

// Login authenticates with a username or email and keeps the returned
// bearer token for later calls.
func (c *Client) Login(ctx context.Context, login, password string) (LoginResult, error) {
	var out LoginResult
	in := map[string]string{"username": login, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", in, &out); err != nil {
		return LoginResult{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Logout ends the current session and forgets the bearer token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Profile returns the caller's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/auth/profile", nil, &out)
	return out.User, err
}

// Sessions lists the caller's active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/auth/sessions", nil, &out)
	return out.Sessions, err
}

// RevokeSession ends one of the caller's sessions.
func (c *Client) RevokeSession(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodDelete, "/v1/auth/sessions/"+strconv.FormatUint(id, 10), nil, nil)
}

// RevokeUserSessions ends every session of userID.  Admin only.
func (c *Client) RevokeUserSessions(ctx context.Context, userID uint64) (int64, error) {
	var out struct {
		Revoked int64 `json:"revoked"`
	}
	err := c.do(ctx, http.MethodDelete, "/v1/admin/users/"+strconv.FormatUint(userID, 10)+"/sessions", nil, &out)
	return out.Revoked, err
}

// do sends a request, attaching the CSRF token on state-changing methods.
// When the server asks for a refresh it re-mints the token and retries
// exactly once.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if method == http.MethodGet || method == http.MethodHead {
		return c.send(ctx, method, path, in, out)
	}
	c.mu.Lock()
	have := c.csrf != ""
	c.mu.Unlock()
	if !have {
		if err := c.RefreshCSRF(ctx); err != nil {
			return err
		}
	}
	err := c.send(ctx, method, path, in, out)
	var ae *APIError
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden || !ae.Refresh {
		return err
	}
	if err := c.RefreshCSRF(ctx); err != nil {
		return err
	}
	return c.send(ctx, method, path, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.csrf != "" && method != http.MethodGet && method != http.MethodHead {
		req.Header.Set(csrfHeader, c.csrf)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
			ae.Code = env.Error.Code
			ae.Message = env.Error.Message
			ae.Details = env.Error.Details
			ae.LockedUntil = env.Error.LockedUntil
			ae.Refresh = env.Error.Refresh != nil && *env.Error.Refresh
		}
		return ae
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
