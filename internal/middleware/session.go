package middleware

import (
    "context"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/service"
)

// Authenticator validates a bearer token against its server-side session.
type Authenticator interface {
    Authenticate(ctx context.Context, rawToken string, meta service.RequestMeta) (service.Identity, error)
}

// RequireSession returns an Echo middleware that admits a request only when
// it carries a bearer token with a valid signature and expiry whose session
// is still active.  The resolved identity is stored on the context for
// downstream handlers (see IdentityFrom).
//
// A missing token yields 401 ACCESS_TOKEN_REQUIRED, a bad or expired token
// 403 TOKEN_INVALID, and a revoked or expired session 403 SESSION_INVALID.
func RequireSession(auth Authenticator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, err := auth.Authenticate(c.Request().Context(), BearerToken(c), RequestMeta(c))
            if err != nil {
                return apierr.Write(c, err)
            }
            SetIdentity(c, id)
            return next(c)
        }
    }
}
