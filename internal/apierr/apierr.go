// Package apierr renders failures as JSON responses of the form
//
//	{"error": {"code": "...", "message": "...", ...}}
//
// Handlers and middleware both use it so every error body has one shape.
package apierr

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/admin-auth/internal/service"
)

// Body is the "error" object of a failure response.
type Body struct {
	Code        string               `json:"code"`
	Message     string               `json:"message"`
	Details     []service.FieldError `json:"details,omitempty"`
	LockedUntil *time.Time           `json:"lockedUntil,omitempty"`
	Refresh     *bool                `json:"refresh,omitempty"`
	RetryAfter  int                  `json:"retry_after,omitempty"`
}

// Envelope wraps Body.
type Envelope struct {
	Error Body `json:"error"`
}

// Status maps a service code to its HTTP status.
func Status(code service.Code) int {
	switch code {
	case service.CodeValidation, service.CodeNoToken:
		return http.StatusBadRequest
	case service.CodeInvalidCredentials, service.CodeTokenRequired:
		return http.StatusUnauthorized
	case service.CodeTokenInvalid, service.CodeSessionInvalid, service.CodeAccountDeactivated, service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeAccountLocked:
		return http.StatusLocked
	case service.CodeUserExists:
		return http.StatusConflict
	case service.CodeUserNotFound, service.CodeSessionNotFound:
		return http.StatusNotFound
	case service.CodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// loggerKey is the Echo context key holding the request-scoped logger.
const loggerKey = "apierr.logger"

// WithLogger makes log available to Write for every request.
func WithLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(loggerKey, log)
			return next(c)
		}
	}
}

func loggerFrom(c echo.Context) *slog.Logger {
	if log, ok := c.Get(loggerKey).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}

// Write renders err.  Errors that are not *service.Error are reported as a
// generic internal error; their text never reaches the client.  The cause of
// every internal error is logged with the request id.
func Write(c echo.Context, err error) error {
	var se *service.Error
	if !errors.As(err, &se) {
		logInternal(c, err)
		return c.JSON(http.StatusInternalServerError, Envelope{Error: Body{
			Code:    string(service.CodeInternal),
			Message: "Internal server error",
		}})
	}
	if se.Code == service.CodeInternal {
		cause := se.Err
		if cause == nil {
			cause = se
		}
		logInternal(c, cause)
	}
	return c.JSON(Status(se.Code), Envelope{Error: Body{
		Code:        string(se.Code),
		Message:     se.Message,
		Details:     se.Fields,
		LockedUntil: se.LockedUntil,
	}})
}

func logInternal(c echo.Context, err error) {
	req := c.Request()
	loggerFrom(c).ErrorContext(req.Context(), "internal error",
		"method", req.Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"error", err.Error(),
	)
}

// CSRF reason codes.
const (
	CSRFTokenMissing    = "CSRF_TOKEN_MISSING"
	CSRFRefreshRequired = "CSRF_REFRESH_REQUIRED"
	CSRFTokenInvalid    = "CSRF_TOKEN_INVALID"
)

// WriteCSRF renders an anti-forgery rejection.  refresh tells the caller
// that fetching a new token and retrying once may succeed.
func WriteCSRF(c echo.Context, code, message string, refresh bool) error {
	return c.JSON(http.StatusForbidden, Envelope{Error: Body{
		Code:    code,
		Message: message,
		Refresh: &refresh,
	}})
}

// WriteRateLimited renders a 429 with the retry delay in seconds.
func WriteRateLimited(c echo.Context, retryAfter int) error {
	return c.JSON(http.StatusTooManyRequests, Envelope{Error: Body{
		Code:       "RATE_LIMITED",
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}})
}

// WriteBadRequest renders a 400 for a body that could not be decoded.
func WriteBadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, Envelope{Error: Body{
		Code:    string(service.CodeValidation),
		Message: message,
	}})
}
