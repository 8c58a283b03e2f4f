package service_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/admin-auth/internal/database/dbtest"
	"github.com/iliyamo/admin-auth/internal/queue"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/service"
	"github.com/iliyamo/admin-auth/internal/utils"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256-signing-in-unit-tests!!"

var meta = service.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "go-test"}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	events chan queue.SecurityEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.SecurityEvent) error {
	p.events <- ev
	return nil
}

type env struct {
	svc   *service.AuthService
	db    *sql.DB
	clock *fakeClock
	users *repository.UserRepo
}

type envOption func(*envConfig)

type envConfig struct {
	users     func(*repository.UserRepo) service.UserStore
	hasher    func(service.Hasher) service.Hasher
	audit     service.AuditStore
	publisher service.EventPublisher
}

func withPublisher(p service.EventPublisher) envOption {
	return func(c *envConfig) { c.publisher = p }
}

func withAuditStore(s service.AuditStore) envOption {
	return func(c *envConfig) { c.audit = s }
}

// withUserStore wraps the environment's user repository.
func withUserStore(wrap func(*repository.UserRepo) service.UserStore) envOption {
	return func(c *envConfig) { c.users = wrap }
}

// withHasher wraps the environment's bcrypt hasher.
func withHasher(wrap func(service.Hasher) service.Hasher) envOption {
	return func(c *envConfig) { c.hasher = wrap }
}

// countingHasher counts password comparisons.
type countingHasher struct {
	service.Hasher
	verify atomic.Int32
	dummy  atomic.Int32
}

func (h *countingHasher) Verify(hash, plain string) bool {
	h.verify.Add(1)
	return h.Hasher.Verify(hash, plain)
}

func (h *countingHasher) VerifyDummy(plain string) {
	h.dummy.Add(1)
	h.Hasher.VerifyDummy(plain)
}

func (h *countingHasher) reset() {
	h.verify.Store(0)
	h.dummy.Store(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	db := dbtest.New(t)
	clk := newClock()
	users := repository.NewUserRepo(db)

	cfg := envConfig{audit: repository.NewAuditRepo(db)}
	for _, o := range opts {
		o(&cfg)
	}
	var store service.UserStore = users
	if cfg.users != nil {
		store = cfg.users(users)
	}

	var hasher service.Hasher = utils.NewPasswordHasher(bcrypt.MinCost)
	if cfg.hasher != nil {
		hasher = cfg.hasher(hasher)
	}

	tokens := utils.NewTokenIssuer(testSecret, time.Hour).WithClock(clk.Now)
	audit := service.NewAuditLogger(cfg.audit, cfg.publisher, discardLogger()).WithClock(clk.Now)
	t.Cleanup(func() { _ = audit.Close(context.Background()) })
	svc := service.NewAuthService(store, repository.NewSessionRepo(db),
		hasher, tokens, audit, service.Options{
			Lockout:    service.LockoutPolicy{Threshold: 5, Duration: time.Hour},
			SessionTTL: time.Hour,
			Clock:      clk.Now,
			Logger:     discardLogger(),
		})
	return &env{svc: svc, db: db, clock: clk, users: users}
}

func (e *env) register(t *testing.T, username, email, password string) uint64 {
	t.Helper()
	res, err := e.svc.Register(context.Background(), service.RegisterInput{
		Username: username, Email: email, Password: password,
	}, meta)
	require.NoError(t, err)
	return res.UserID
}

func (e *env) login(t *testing.T, login, password string) service.LoginResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), service.LoginInput{Login: login, Password: password}, meta)
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, code service.Code) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, service.IsCode(err, code), "want %s, got %v", code, err)
}

func (e *env) auditActions(t *testing.T) []string {
	t.Helper()
	rows, err := e.db.Query("SELECT action FROM audit_logs ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		require.NoError(t, rows.Scan(&a))
		out = append(out, a)
	}
	require.NoError(t, rows.Err())
	return out
}
