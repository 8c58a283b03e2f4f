package app_test

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/app"
	"github.com/iliyamo/admin-auth/internal/client"
	"github.com/iliyamo/admin-auth/internal/config"
	"github.com/iliyamo/admin-auth/internal/database/dbtest"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	url   string
	db    *sql.DB
	clock *clock
}

func start(t *testing.T) *harness {
	t.Helper()
	return startWithLogs(t, io.Discard)
}

// syncBuffer collects log output written from server goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startWithLogs(t *testing.T, logs io.Writer) *harness {
	t.Helper()
	db := dbtest.New(t)
	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	srv := app.New(app.Deps{
		Config: config.Config{
			Env:              "test",
			DBDriver:         "sqlite",
			JWTSecret:        strings.Repeat("k", 64),
			AccessTTLMin:     60,
			SessionTTLMin:    60,
			BcryptCost:       4,
			LockoutThreshold: 5,
			LockoutDuration:  time.Hour,
			CSRFEnabled:      true,
			CSRFSecret:       strings.Repeat("ab", 32),
			CSRFRotation:     30 * time.Minute,
			CSRFCookieTTL:    time.Hour,
		},
		RateLimit: config.RateLimitConfig{Enabled: false},
		DB:        db,
		Log:       slog.New(slog.NewTextHandler(logs, nil)),
		Clock:     clk.Now,
	})
	ts := httptest.NewServer(srv.Echo)
	t.Cleanup(ts.Close)
	return &harness{url: ts.URL, db: db, clock: clk}
}

func (h *harness) client(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(h.url)
	require.NoError(t, err)
	return c
}

func requireAPICode(t *testing.T, err error, status int, code string) *client.APIError {
	t.Helper()
	require.Error(t, err)
	var ae *client.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, code, ae.Code)
	return ae
}

func TestEndToEndSessionLifecycle(t *testing.T) {
	h := start(t)
	ctx := context.Background()
	c := h.client(t)

	id, err := c.Register(ctx, "alice", "Alice@Example.com", "Secret123")
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = c.Register(ctx, "alice", "other@example.com", "Secret123")
	requireAPICode(t, err, http.StatusConflict, "USER_EXISTS")

	res, err := c.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, id, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "viewer", res.User.Role)
	assert.Equal(t, h.clock.Now().Add(time.Hour), res.ExpiresAt.UTC())

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)

	token := c.Token()
	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Token())

	_, err = c.Profile(ctx)
	requireAPICode(t, err, http.StatusUnauthorized, "ACCESS_TOKEN_REQUIRED")

	c.SetToken(token)
	_, err = c.Profile(ctx)
	requireAPICode(t, err, http.StatusForbidden, "SESSION_INVALID")

	c.SetToken("not-a-jwt")
	_, err = c.Profile(ctx)
	requireAPICode(t, err, http.StatusForbidden, "TOKEN_INVALID")
}

func TestEndToEndValidationDetails(t *testing.T) {
	h := start(t)
	_, err := h.client(t).Register(context.Background(), "a", "nope", "short")
	ae := requireAPICode(t, err, http.StatusBadRequest, "VALIDATION_FAILED")
	fields := map[string]bool{}
	for _, d := range ae.Details {
		fields[d.Field] = true
	}
	assert.Equal(t, map[string]bool{"username": true, "email": true, "password": true}, fields)
}

func TestEndToEndLockout(t *testing.T) {
	h := start(t)
	ctx := context.Background()
	c := h.client(t)
	_, err := c.Register(ctx, "alice", "alice@example.com", "Secret123")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.Login(ctx, "alice", "Wrong1234")
		requireAPICode(t, err, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	_, err = c.Login(ctx, "alice", "Secret123")
	ae := requireAPICode(t, err, http.StatusLocked, "ACCOUNT_LOCKED")
	require.NotNil(t, ae.LockedUntil)
	assert.Equal(t, h.clock.Now().Add(time.Hour), ae.LockedUntil.UTC())

	h.clock.Advance(time.Hour)
	_, err = c.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)
}

func TestEndToEndCSRF(t *testing.T) {
	h := start(t)
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Post(h.url+"/v1/auth/login", "application/json",
			strings.NewReader(`{"username":"alice","password":"Secret123"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"CSRF_TOKEN_MISSING"`)
	})

	t.Run("stale token is refreshed once", func(t *testing.T) {
		c := h.client(t)
		require.NoError(t, c.RefreshCSRF(ctx))
		h.clock.Advance(31 * time.Minute)
		_, err := c.Register(ctx, "bob", "bob@example.com", "Secret123")
		require.NoError(t, err)
	})
}

func TestEndToEndAdminRoutes(t *testing.T) {
	h := start(t)
	ctx := context.Background()

	viewer := h.client(t)
	viewerID, err := viewer.Register(ctx, "alice", "alice@example.com", "Secret123")
	require.NoError(t, err)
	_, err = viewer.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	_, err = viewer.RevokeUserSessions(ctx, viewerID)
	requireAPICode(t, err, http.StatusForbidden, "FORBIDDEN")

	admin := h.client(t)
	adminID, err := admin.Register(ctx, "root", "root@example.com", "Secret123")
	require.NoError(t, err)
	_, err = h.db.Exec("UPDATE users SET role='admin' WHERE id=?", adminID)
	require.NoError(t, err)
	_, err = admin.Login(ctx, "root", "Secret123")
	require.NoError(t, err)

	n, err := admin.RevokeUserSessions(ctx, viewerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = viewer.Profile(ctx)
	requireAPICode(t, err, http.StatusForbidden, "SESSION_INVALID")

	_, err = admin.RevokeUserSessions(ctx, 9999)
	requireAPICode(t, err, http.StatusNotFound, "USER_NOT_FOUND")
}

func TestHealthz(t *testing.T) {
	h := start(t)
	resp, err := http.Get(h.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	h := start(t)
	resp, err := http.Get(h.url + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"NOT_FOUND"`)
}

func TestInternalErrorCauseIsLogged(t *testing.T) {
	logs := &syncBuffer{}
	h := startWithLogs(t, logs)
	ctx := context.Background()
	c := h.client(t)
	_, err := c.Register(ctx, "alice", "alice@example.com", "Secret123")
	require.NoError(t, err)

	_, err = h.db.Exec("DROP TABLE sessions")
	require.NoError(t, err)

	_, err = c.Login(ctx, "alice", "Secret123")
	ae := requireAPICode(t, err, http.StatusInternalServerError, "INTERNAL")
	assert.NotContains(t, ae.Message, "no such table")

	out := logs.String()
	assert.Contains(t, out, "internal error")
	assert.Contains(t, out, "no such table")
	assert.Contains(t, out, "request_id=")
	assert.Contains(t, out, "path=/v1/auth/login")
}
