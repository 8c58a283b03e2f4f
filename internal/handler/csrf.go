package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/admin-auth/internal/apierr"
    "github.com/iliyamo/admin-auth/internal/middleware"
)

// CSRFHandler mints anti-forgery tokens.
type CSRFHandler struct {
    Guard *middleware.CSRFGuard
}

func NewCSRFHandler(g *middleware.CSRFGuard) *CSRFHandler { return &CSRFHandler{Guard: g} }

type csrfResp struct {
    CSRFToken string    `json:"csrfToken"`
    RefreshAt time.Time `json:"refreshAt"`
}

// Token: GET /v1/csrf-token sets the signed cookie and returns the token
// the client must echo in the X-CSRF-Token header.
func (h *CSRFHandler) Token(c echo.Context) error {
    tok, refreshAt, err := h.Guard.Mint(c)
    if err != nil {
        return apierr.Write(c, err)
    }
    c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
    return c.JSON(http.StatusOK, csrfResp{CSRFToken: tok, RefreshAt: refreshAt.UTC()})
}
