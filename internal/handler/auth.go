package handler

import (
    "context" // per-request deadline for store calls
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/middleware"
    "github.com/iliyamo/admin-auth/internal/model"
    "github.com/iliyamo/admin-auth/internal/service"
)

// requestTimeout bounds the store work behind one request.  Login pays for
// a bcrypt comparison on top of its queries, so it is generous.
const requestTimeout = 10 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
    return &AuthHandler{Auth: auth}
}

// ----- DTOs -----

type registerResp struct {
    Message string `json:"message"`
    UserID  uint64 `json:"userId"`
}

type loginResp struct {
    Message   string              `json:"message"`
    Token     string              `json:"token"`
    ExpiresAt time.Time           `json:"expires_at"`
    SessionID uint64              `json:"session_id"`
    User      model.PublicProfile `json:"user"`
}

type messageResp struct {
    Message string `json:"message"`
}

type revokeAllResp struct {
    Message string `json:"message"`
    Revoked int64  `json:"revoked"`
}

// Register: POST /v1/auth/register -> 201 {userId}.
func (h *AuthHandler) Register(c echo.Context) error {
    var req service.RegisterInput
    if err := c.Bind(&req); err != nil {
        return apierr.WriteBadRequest(c, "invalid body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    res, err := h.Auth.Register(ctx, req, middleware.RequestMeta(c))
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusCreated, registerResp{Message: "User registered successfully", UserID: res.UserID})
}

// Login: POST /v1/auth/login -> 200 {token, expires_at, user}.
func (h *AuthHandler) Login(c echo.Context) error {
    var req service.LoginInput
    if err := c.Bind(&req); err != nil {
        return apierr.WriteBadRequest(c, "invalid body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    res, err := h.Auth.Login(ctx, req, middleware.RequestMeta(c))
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, loginResp{
        Message:   "Login successful",
        Token:     res.Token,
        ExpiresAt: res.ExpiresAt,
        SessionID: res.SessionID,
        User:      res.User,
    })
}

// Logout: POST /v1/auth/logout.  Accepts an expired token so a client can
// always end its session; 400 when no token is sent at all.
func (h *AuthHandler) Logout(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Auth.Logout(ctx, middleware.BearerToken(c), middleware.RequestMeta(c)); err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, messageResp{Message: "Logout successful"})
}

// Profile: GET /v1/auth/profile.
func (h *AuthHandler) Profile(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    p, err := h.Auth.Profile(ctx, id.UserID)
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"user": p})
}

// Sessions: GET /v1/auth/sessions lists the caller's active sessions.
func (h *AuthHandler) Sessions(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    list, err := h.Auth.ListSessions(ctx, id)
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"sessions": list})
}

// RevokeSession: DELETE /v1/auth/sessions/:id.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    sid, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || sid == 0 {
        return apierr.WriteBadRequest(c, "invalid session id")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Auth.RevokeSession(ctx, id, sid, middleware.RequestMeta(c)); err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, messageResp{Message: "Session revoked"})
}

// RevokeOtherSessions: DELETE /v1/auth/sessions signs out every other device.
func (h *AuthHandler) RevokeOtherSessions(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    n, err := h.Auth.RevokeOtherSessions(ctx, id, middleware.RequestMeta(c))
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, revokeAllResp{Message: "Other sessions revoked", Revoked: n})
}
