package middleware

import (
    "crypto/subtle"
    "net/http"
    "time"

    "github.com/gorilla/securecookie"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/utils"
)

// Names shared with clients.
const (
    CSRFCookieName = "csrf_token"
    CSRFHeaderName = "X-CSRF-Token"
)

// Defaults for CSRFConfig.
const (
    DefaultCSRFRotation  = 30 * time.Minute
    DefaultCSRFCookieTTL = time.Hour
)

// CSRFConfig tunes the anti-forgery guard.
type CSRFConfig struct {
    Enabled   bool
    HashKey   []byte        // signs the cookie; 32 or 64 random bytes
    Rotation  time.Duration // tokens older than this must be re-minted
    CookieTTL time.Duration
    Secure    bool // set the Secure cookie attribute
}

// csrfCookie is the signed cookie payload.  The secret is also what the
// client echoes back in the header.
type csrfCookie struct {
    Secret   string `json:"s"`
    IssuedAt int64  `json:"iat"`
}

// CSRFGuard implements double-submit protection: a random secret is handed
// to the caller and also stored in a signed httpOnly cookie; state-changing
// requests must present the same secret in the X-CSRF-Token header.
type CSRFGuard struct {
    cfg   CSRFConfig
    codec *securecookie.SecureCookie
    now   func() time.Time
}

// NewCSRFGuard returns a guard.  A nil HashKey gets a random key, which
// invalidates outstanding tokens on restart.
func NewCSRFGuard(cfg CSRFConfig) *CSRFGuard {
    if cfg.Rotation <= 0 {
        cfg.Rotation = DefaultCSRFRotation
    }
    if cfg.CookieTTL <= 0 {
        cfg.CookieTTL = DefaultCSRFCookieTTL
    }
    if len(cfg.HashKey) == 0 {
        cfg.HashKey = securecookie.GenerateRandomKey(32)
    }
    // Age is checked against IssuedAt so the reason code can tell a stale
    // token from a forged one; the codec's own timestamp check is off.
    codec := securecookie.New(cfg.HashKey, nil).MaxAge(0)
    codec.SetSerializer(securecookie.JSONEncoder{})
    return &CSRFGuard{cfg: cfg, codec: codec, now: time.Now}
}

// WithClock replaces the time source.
func (g *CSRFGuard) WithClock(now func() time.Time) *CSRFGuard {
    g.now = now
    return g
}

// Mint issues a fresh token, sets its cookie on the response and returns
// the value the client must send back in the header.
func (g *CSRFGuard) Mint(c echo.Context) (string, time.Time, error) {
    secret, err := utils.RandomHex(32)
    if err != nil {
        return "", time.Time{}, err
    }
    issued := g.now()
    encoded, err := g.codec.Encode(CSRFCookieName, csrfCookie{Secret: secret, IssuedAt: issued.Unix()})
    if err != nil {
        return "", time.Time{}, err
    }
    c.SetCookie(&http.Cookie{
        Name:     CSRFCookieName,
        Value:    encoded,
        Path:     "/",
        MaxAge:   int(g.cfg.CookieTTL.Seconds()),
        HttpOnly: true,
        Secure:   g.cfg.Secure,
        SameSite: http.SameSiteStrictMode,
    })
    return secret, issued.Add(g.cfg.Rotation), nil
}

// Protect gates state-changing methods.  GET, HEAD and OPTIONS pass
// through untouched.
func (g *CSRFGuard) Protect() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !g.cfg.Enabled {
                return next(c)
            }
            switch c.Request().Method {
            case http.MethodGet, http.MethodHead, http.MethodOptions:
                return next(c)
            }

            header := c.Request().Header.Get(CSRFHeaderName)
            ck, err := c.Cookie(CSRFCookieName)
            if header == "" || err != nil || ck.Value == "" {
                return apierr.WriteCSRF(c, apierr.CSRFTokenMissing, "CSRF token missing", true)
            }

            var v csrfCookie
            if err := g.codec.Decode(CSRFCookieName, ck.Value, &v); err != nil {
                return apierr.WriteCSRF(c, apierr.CSRFTokenInvalid, "CSRF token invalid", false)
            }
            if subtle.ConstantTimeCompare([]byte(header), []byte(v.Secret)) != 1 {
                return apierr.WriteCSRF(c, apierr.CSRFTokenInvalid, "CSRF token invalid", false)
            }
            if g.now().Sub(time.Unix(v.IssuedAt, 0)) >= g.cfg.Rotation {
                return apierr.WriteCSRF(c, apierr.CSRFRefreshRequired, "CSRF token expired, fetch a new one", true)
            }
            return next(c)
        }
    }
}
