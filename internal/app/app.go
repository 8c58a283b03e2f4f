// Package app wires configuration, stores, the authentication core and the
// HTTP boundary into a ready-to-serve Echo instance.
package app

import (
	"database/sql"
	"errors"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/admin-auth/internal/apierr"
	"github.com/iliyamo/admin-auth/internal/config"
	"github.com/iliyamo/admin-auth/internal/handler"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/repository"
	"github.com/iliyamo/admin-auth/internal/router"
	"github.com/iliyamo/admin-auth/internal/service"
	"github.com/iliyamo/admin-auth/internal/utils"
)

// Deps are the external resources a server runs on.  Redis and Publisher
// may be nil.
type Deps struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	DB        *sql.DB
	Redis     *redis.Client
	Publisher service.EventPublisher
	Log       *slog.Logger
	// Clock overrides the time source; tests use it to move past expiries.
	Clock func() time.Time
}

// Server is an assembled application.
type Server struct {
	Echo  *echo.Echo
	Auth  *service.AuthService
	Audit *service.AuditLogger
}

// New assembles the server.
func New(d Deps) *Server {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	users := repository.NewUserRepo(d.DB)
	sessions := repository.NewSessionRepo(d.DB)
	audits := repository.NewAuditRepo(d.DB)

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL())
	audit := service.NewAuditLogger(audits, d.Publisher, log)
	guard := middleware.NewCSRFGuard(middleware.CSRFConfig{
		Enabled:   cfg.CSRFEnabled,
		HashKey:   csrfKey(cfg.CSRFSecret, log),
		Rotation:  cfg.CSRFRotation,
		CookieTTL: cfg.CSRFCookieTTL,
		Secure:    cfg.CookieSecure,
	})
	if d.Clock != nil {
		tokens.WithClock(d.Clock)
		audit.WithClock(d.Clock)
		guard.WithClock(d.Clock)
	}

	auth := service.NewAuthService(users, sessions, utils.NewPasswordHasher(cfg.BcryptCost), tokens, audit, service.Options{
		Lockout:    service.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration},
		SessionTTL: cfg.SessionTTL(),
		Clock:      d.Clock,
		Logger:     log,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(apierr.WithLogger(log.With("component", "http")))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.BodyLimit("64K"))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "0",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         hstsMaxAge(cfg),
		ReferrerPolicy:     "no-referrer",
	}))
	e.HTTPErrorHandler = errorHandler()

	gates := router.Gates{
		Session:   middleware.RequireSession(auth),
		CSRF:      guard.Protect(),
		RateLimit: middleware.NewTokenBucket(d.RateLimit, d.Redis, log),
	}
	router.RegisterRoutes(e, d.DB, handler.NewCSRFHandler(guard))
	router.RegisterAuth(e, handler.NewAuthHandler(auth), gates)
	router.RegisterAdmin(e, handler.NewAdminHandler(auth), gates)

	return &Server{Echo: e, Auth: auth, Audit: audit}
}

// csrfKey decodes the configured hex hash key.  A non-hex value is used as
// raw bytes; an empty one yields a per-process random key.
func csrfKey(secret string, log *slog.Logger) []byte {
	if secret == "" {
		log.Warn("CSRF_SECRET not set; csrf tokens will not survive a restart")
		return nil
	}
	if b, err := hex.DecodeString(secret); err == nil && len(b) >= 32 {
		return b
	}
	return []byte(secret)
}

func hstsMaxAge(cfg config.Config) int {
	if cfg.CookieSecure {
		return 31536000
	}
	return 0
}

// errorHandler renders Echo's own errors (404, 405, oversized bodies) in the
// same envelope as everything else.
func errorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			_ = apierr.Write(c, err)
			return
		}
		code := "HTTP_ERROR"
		switch he.Code {
		case http.StatusNotFound:
			code = "NOT_FOUND"
		case http.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case http.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		case http.StatusInternalServerError:
			code = "INTERNAL"
		}
		msg := http.StatusText(he.Code)
		_ = c.JSON(he.Code, echo.Map{"error": echo.Map{"code": code, "message": msg}})
	}
}
