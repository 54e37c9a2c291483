// Package gin provides Gin middleware for subscription access gating
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

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

// Middleware creates a Gin middleware that gates requests on authentication
// and subscription-active status
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("subgate/gin: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("subgate/gin: Config.GetUserID is required")
	}
	if cfg.RedirectStatusCode == 0 {
		cfg.RedirectStatusCode = http.StatusFound
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)

		ctx := subgate.WithForwardedCookies(c.Request.Context(), c.GetHeader("Cookie"))
		decision := cfg.Gate.Decide(ctx, c.Request.URL.Path, userID)

		if decision.Action == subgate.ActionAllow {
			c.Next()
			return
		}
		c.Redirect(cfg.RedirectStatusCode, decision.Location)
		c.Abort()
	}
}

// FromKey returns an UserIDExtractor that gets user ID from the Gin context
// store (c.Set / c.Get)
func FromKey(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if v, ok := c.Get(key); ok {
			if userID, ok := v.(string); ok {
				return userID
			}
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}
