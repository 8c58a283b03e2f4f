package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/admin-auth/internal/handler"
	"github.com/iliyamo/admin-auth/internal/middleware"
	"github.com/iliyamo/admin-auth/internal/model"
)

// Gates are the middlewares routes are assembled from.
type Gates struct {
	Session   echo.MiddlewareFunc // bearer token + active session
	CSRF      echo.MiddlewareFunc // double-submit check on state-changing methods
	RateLimit echo.MiddlewareFunc // token bucket on credential endpoints
}

// RegisterRoutes registers routes that do not require authentication: the
// health probe and the anti-forgery token endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB, csrf *handler.CSRFHandler) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/v1/csrf-token", csrf.Token)
}

// RegisterAuth registers the authentication endpoints under /v1/auth.
// Register and login are rate limited; every state-changing route passes
// the CSRF gate.  Logout does not require a live session so an expired
// token can still end its session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Gates) {
	grp := e.Group("/v1/auth")
	grp.POST("/register", a.Register, g.RateLimit, g.CSRF)
	grp.POST("/login", a.Login, g.RateLimit, g.CSRF)
	grp.POST("/logout", a.Logout, g.CSRF)

	// The session gate runs before CSRF so an unauthenticated caller learns
	// about the missing token first.
	grp.GET("/profile", a.Profile, g.Session)
	grp.GET("/sessions", a.Sessions, g.Session)
	grp.DELETE("/sessions", a.RevokeOtherSessions, g.Session, g.CSRF)
	grp.DELETE("/sessions/:id", a.RevokeSession, g.Session, g.CSRF)
}

// RegisterAdmin registers admin-only endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, g Gates) {
	admin := e.Group("/v1/admin", g.Session, middleware.RequireRole(model.RoleAdmin), g.CSRF)
	admin.DELETE("/users/:id/sessions", h.RevokeUserSessions)
	admin.GET("/audit-logs", h.AuditLogs)
}
