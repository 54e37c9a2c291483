// Package echo provides Echo middleware for subscription access gating
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Gate decides pass-through vs. redirect per request (required)
	Gate *subgate.Gate

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// RedirectStatusCode is the HTTP status used for redirects
	// Default: 302 Found
	RedirectStatusCode int
}

// Middleware creates an Echo middleware that gates requests on
// authentication and subscription-active status
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("subgate/echo: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("subgate/echo: Config.GetUserID is required")
	}
	if cfg.RedirectStatusCode == 0 {
		cfg.RedirectStatusCode = http.StatusFound
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)

			req := c.Request()
			ctx := subgate.WithForwardedCookies(req.Context(), req.Header.Get("Cookie"))
			decision := cfg.Gate.Decide(ctx, req.URL.Path, userID)

			if decision.Action == subgate.ActionAllow {
				return next(c)
			}
			return c.Redirect(cfg.RedirectStatusCode, decision.Location)
		}
	}
}

// FromKey returns an UserIDExtractor that gets user ID from the Echo context
// store (c.Set / c.Get)
func FromKey(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if userID, ok := c.Get(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}
