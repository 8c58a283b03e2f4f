package middleware // middleware provides shared request processing for handlers

import (
    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/model"
    "github.com/iliyamo/admin-auth/internal/service"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It must run after
// RequireSession, which stores the identity (and therefore the role claim)
// on the context.  A missing identity or a role outside the allowed set
// aborts the request with 403 FORBIDDEN.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
    // Build a set of allowed roles for constant-time lookups.
    allowed := make(map[model.Role]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, ok := IdentityFrom(c)
            if !ok || !allowed[id.Role] {
                return apierr.Write(c, &service.Error{Code: service.CodeForbidden, Message: "Insufficient permissions"})
            }
            return next(c)
        }
    }
}
