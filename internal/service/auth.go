// Package service holds the authentication core: registration, login with
// lockout, logout and per-request token/session validation.  It is
// transport-agnostic; handlers translate its *Error values into responses.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// DefaultSessionTTL is the server-side lifetime of a login session.
const DefaultSessionTTL = time.Hour

// defaultClock truncates to whole seconds so stored timestamps compare the
// same way on every SQL backend.
func defaultClock() time.Time { return time.Now().UTC().Truncate(time.Second) }

// UserStore is the user persistence the service needs.
type UserStore interface {
	LockoutStore
	Create(ctx context.Context, u model.User) (uint64, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	FindByLogin(ctx context.Context, login string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// SessionStore is the session persistence the service needs.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) (uint64, error)
	FindActive(ctx context.Context, tokenHash string, now time.Time) (model.Session, error)
	RevokeByToken(ctx context.Context, tokenHash string) (int64, error)
	RevokeForUser(ctx context.Context, userID, sessionID uint64) error
	RevokeAllForUser(ctx context.Context, userID, keepID uint64) (int64, error)
	ListActiveByUser(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
	VerifyDummy(plain string)
}

// TokenAuthority mints and verifies bearer tokens.
type TokenAuthority interface {
	Mint(userID uint64, username, role string) (utils.AccessToken, error)
	Verify(raw string) (*utils.Claims, error)
	VerifySignature(raw string) (*utils.Claims, error)
}

// Options tunes an AuthService.  Zero values select the defaults.
type Options struct {
	Lockout    LockoutPolicy
	SessionTTL time.Duration
	Clock      func() time.Time
	Logger     *slog.Logger
}

// AuthService orchestrates the authentication flows.  It holds no mutable
// state of its own; every counter and session lives in the stores.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	hasher   Hasher
	tokens   TokenAuthority
	lockout  *LockoutTracker
	audit    *AuditLogger
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, hasher Hasher, tokens TokenAuthority, audit *AuditLogger, opts Options) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = defaultClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		lockout:  NewLockoutTracker(users, opts.Lockout),
		audit:    audit,
		ttl:      opts.SessionTTL,
		now:      opts.Clock,
		log:      opts.Logger.With("component", "auth"),
	}
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	UserID uint64 `json:"userId"`
}

// Register creates a viewer account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (RegisterResult, error) {
	in = in.normalize()
	if fields := validateRegistration(in); len(fields) > 0 {
		return RegisterResult{}, validationError(fields)
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{}, internalError(err)
	}
	if exists {
		return RegisterResult{}, newError(CodeUserExists, msgUserExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, internalError(err)
	}

	u := model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.RoleViewer,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	// The pre-check above races with concurrent registrations; the unique
	// index settles it.
	id, err := s.users.Create(ctx, u)
	if errors.Is(err, repository.ErrConflict) {
		return RegisterResult{}, newError(CodeUserExists, msgUserExists)
	}
	if err != nil {
		return RegisterResult{}, internalError(err)
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:       &id,
		Action:       model.ActionUserRegistered,
		ResourceType: "user",
		ResourceID:   &id,
		NewValues:    map[string]any{"username": u.Username, "email": u.Email, "role": u.Role},
		Meta:         meta,
	})
	s.log.InfoContext(ctx, "user registered", "user_id", id)
	return RegisterResult{UserID: id}, nil
}

// LoginInput is the client-supplied login payload.  Login matches either the
// username or the email.
type LoginInput struct {
	Login    string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	SessionID uint64              `json:"session_id"`
	User      model.PublicProfile `json:"user"`
}

// Login verifies credentials and opens a session.
//
// An unknown login and a wrong password return the same code and message.
// Every branch without a usable hash still pays for a bcrypt comparison so
// response time does not reveal which accounts exist.  Once credentials are
// known, the remaining writes are detached from ctx cancellation so a client
// disconnect cannot leave the counter reset without a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput, meta RequestMeta) (LoginResult, error) {
	login := strings.TrimSpace(in.Login)
	if login == "" || in.Password == "" {
		var fields []FieldError
		if login == "" {
			fields = append(fields, FieldError{Field: "username", Message: "is required"})
		}
		if in.Password == "" {
			fields = append(fields, FieldError{Field: "password", Message: "is required"})
		}
		return LoginResult{}, validationError(fields)
	}

	u, err := s.users.FindByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.VerifyDummy(in.Password)
		s.audit.Record(ctx, AuditEvent{
			Action:    model.ActionUserLoginFailed,
			NewValues: map[string]any{"reason": "unknown_user"},
			Meta:      meta,
		})
		return LoginResult{}, newError(CodeInvalidCredentials, msgInvalidCredentials)
	}
	if err != nil {
		return LoginResult{}, internalError(err)
	}

	now := s.now()
	if !u.IsActive {
		s.hasher.VerifyDummy(in.Password)
		s.recordFailure(ctx, u.ID, "deactivated", meta)
		return LoginResult{}, newError(CodeAccountDeactivated, msgAccountDeactivated)
	}
	// The lock is not secret; no credential check while it holds.
	if s.lockout.Locked(u, now) {
		s.recordFailure(ctx, u.ID, "locked", meta)
		return LoginResult{}, lockedError(u.LockedUntil)
	}

	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		out, err := s.lockout.RecordFailure(wctx, u.ID, now)
		if err != nil {
			return LoginResult{}, internalError(err)
		}
		if out.AlreadyLocked {
			s.recordFailure(ctx, u.ID, "locked", meta)
			return LoginResult{}, lockedError(out.LockedUntil)
		}
		s.audit.Record(ctx, AuditEvent{
			UserID:       &u.ID,
			Action:       model.ActionUserLoginFailed,
			ResourceType: "user",
			ResourceID:   &u.ID,
			NewValues:    map[string]any{"reason": "bad_password", "login_attempts": out.Attempts},
			Meta:         meta,
		})
		if out.JustLocked {
			s.audit.Record(ctx, AuditEvent{
				UserID:       &u.ID,
				Action:       model.ActionAccountLocked,
				ResourceType: "user",
				ResourceID:   &u.ID,
				NewValues:    map[string]any{"login_attempts": out.Attempts, "locked_until": out.LockedUntil},
				Meta:         meta,
			})
			s.log.WarnContext(ctx, "account locked", "user_id", u.ID, "locked_until", out.LockedUntil)
		}
		return LoginResult{}, newError(CodeInvalidCredentials, msgInvalidCredentials)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.lockout.RecordSuccess(wctx, u.ID, now); err != nil {
		return LoginResult{}, internalError(err)
	}
	tok, err := s.tokens.Mint(u.ID, u.Username, string(u.Role))
	if err != nil {
		return LoginResult{}, internalError(err)
	}
	sessionID, err := s.sessions.Create(wctx, model.Session{
		UserID:    u.ID,
		TokenHash: utils.HashToken(tok.Token),
		ExpiresAt: now.Add(s.ttl),
		IsActive:  true,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	})
	if err != nil {
		return LoginResult{}, internalError(err)
	}

	s.audit.Record(wctx, AuditEvent{
		UserID:       &u.ID,
		Action:       model.ActionUserLogin,
		ResourceType: "session",
		ResourceID:   &sessionID,
		Meta:         meta,
	})
	s.log.InfoContext(ctx, "user logged in", "user_id", u.ID, "session_id", sessionID)

	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now
	return LoginResult{
		Token:     tok.Token,
		ExpiresAt: tok.Exp,
		SessionID: sessionID,
		User:      u.Public(),
	}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, userID uint64, reason string, meta RequestMeta) {
	s.audit.Record(ctx, AuditEvent{
		UserID:       &userID,
		Action:       model.ActionUserLoginFailed,
		ResourceType: "user",
		ResourceID:   &userID,
		NewValues:    map[string]any{"reason": reason},
		Meta:         meta,
	})
}

// Logout deactivates the session bound to rawToken.  Only the signature is
// checked, so an expired token can still end its session.  A token that
// fails the signature check is accepted silently: there is nothing it could
// identify.
func (s *AuthService) Logout(ctx context.Context, rawToken string, meta RequestMeta) error {
	if rawToken == "" {
		return newError(CodeNoToken, msgNoToken)
	}
	claims, err := s.tokens.VerifySignature(rawToken)
	if err != nil {
		s.log.DebugContext(ctx, "logout with unverifiable token")
		return nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	n, err := s.sessions.RevokeByToken(wctx, utils.HashToken(rawToken))
	if err != nil {
		return internalError(err)
	}
	uid := claims.UserID
	s.audit.Record(wctx, AuditEvent{
		UserID:       &uid,
		Action:       model.ActionUserLogout,
		ResourceType: "session",
		NewValues:    map[string]any{"sessions_revoked": n},
		Meta:         meta,
	})
	return nil
}

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID    uint64
	Username  string
	Role      model.Role
	SessionID uint64
	ExpiresAt time.Time
}

// Authenticate validates a bearer token and its server-side session.  The
// token must carry a valid signature and an unexpired exp, and its hash must
// match an active, unexpired session owned by the token's subject.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string, meta RequestMeta) (Identity, error) {
	if rawToken == "" {
		return Identity{}, newError(CodeTokenRequired, msgTokenRequired)
	}
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		s.audit.Record(ctx, AuditEvent{
			Action:    model.ActionTokenRejected,
			NewValues: map[string]any{"reason": "invalid_token"},
			Meta:      meta,
		})
		return Identity{}, newError(CodeTokenInvalid, msgTokenInvalid)
	}

	sess, err := s.sessions.FindActive(ctx, utils.HashToken(rawToken), s.now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Identity{}, internalError(err)
	}
	if err != nil || sess.UserID != claims.UserID {
		uid := claims.UserID
		s.audit.Record(ctx, AuditEvent{
			UserID:    &uid,
			Action:    model.ActionTokenRejected,
			NewValues: map[string]any{"reason": "session_invalid"},
			Meta:      meta,
		})
		return Identity{}, newError(CodeSessionInvalid, msgSessionInvalid)
	}

	return Identity{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Role:      model.Role(claims.Role),
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Profile returns the public view of userID.
func (s *AuthService) Profile(ctx context.Context, userID uint64) (model.PublicProfile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PublicProfile{}, newError(CodeUserNotFound, msgUserNotFound)
	}
	if err != nil {
		return model.PublicProfile{}, internalError(err)
	}
	return u.Public(), nil
}
