package handler

import (
    "context"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/middleware"
    "github.com/iliyamo/admin-auth/internal/model"
    "github.com/iliyamo/admin-auth/internal/repository"
    "github.com/iliyamo/admin-auth/internal/service"
)

// AdminHandler serves the admin-only endpoints.  Routes are mounted behind
// RequireSession and RequireRole(admin); the service re-checks the role.
type AdminHandler struct {
    Auth *service.AuthService
}

func NewAdminHandler(auth *service.AuthService) *AdminHandler {
    return &AdminHandler{Auth: auth}
}

// RevokeUserSessions: DELETE /v1/admin/users/:id/sessions.
func (h *AdminHandler) RevokeUserSessions(c echo.Context) error {
    actor, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    target, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || target == 0 {
        return apierr.WriteBadRequest(c, "invalid user id")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    n, err := h.Auth.RevokeAllSessions(ctx, actor, target, middleware.RequestMeta(c))
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, revokeAllResp{Message: "Sessions revoked", Revoked: n})
}

// AuditLogs: GET /v1/admin/audit-logs?user_id=&action=&limit=
func (h *AdminHandler) AuditLogs(c echo.Context) error {
    actor, ok := middleware.IdentityFrom(c)
    if !ok {
        return apierr.Write(c, &service.Error{Code: service.CodeTokenRequired, Message: "Access token required"})
    }
    var f repository.AuditFilter
    if v := c.QueryParam("user_id"); v != "" {
        id, err := strconv.ParseUint(v, 10, 64)
        if err != nil {
            return apierr.WriteBadRequest(c, "invalid user_id")
        }
        f.UserID = id
    }
    f.Action = model.AuditAction(c.QueryParam("action"))
    if v := c.QueryParam("limit"); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil || n < 0 {
            return apierr.WriteBadRequest(c, "invalid limit")
        }
        f.Limit = n
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    entries, err := h.Auth.AuditLogs(ctx, actor, f)
    if err != nil {
        return apierr.Write(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"entries": entries})
}
