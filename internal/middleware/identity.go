package middleware

// identity.go holds the helpers shared across middleware and handlers for
// reading the authenticated principal and the raw bearer token from the Echo
// context.

import (
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/admin-auth/internal/service"
)

// identityKey is the Echo context key under which RequireSession stores the
// authenticated service.Identity.
const identityKey = "identity"

// SetIdentity stores id on the context.
func SetIdentity(c echo.Context, id service.Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the identity stored by RequireSession, if any.
func IdentityFrom(c echo.Context) (service.Identity, bool) {
    id, ok := c.Get(identityKey).(service.Identity)
    return id, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header.  It returns "" when the header is absent or uses another scheme.
func BearerToken(c echo.Context) string {
    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    const prefix = "Bearer "
    if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
        return ""
    }
    return strings.TrimSpace(auth[len(prefix):])
}

// RequestMeta captures the client address and user agent for auditing.
func RequestMeta(c echo.Context) service.RequestMeta {
    return service.RequestMeta{
        IPAddress: c.RealIP(),
        UserAgent: c.Request().UserAgent(),
    }
}

// userID returns the authenticated user's id as a string, or "guest" when
// the request is anonymous.
func userID(c echo.Context) string {
    if id, ok := IdentityFrom(c); ok {
        return strconv.FormatUint(id.UserID, 10)
    }
    return "guest"
}
