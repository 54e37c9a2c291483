// Package fiber provides Fiber middleware for subscription access gating
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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

// Middleware creates a Fiber middleware that gates requests on
// authentication and subscription-active status
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("subgate/fiber: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("subgate/fiber: Config.GetUserID is required")
	}
	if cfg.RedirectStatusCode == 0 {
		cfg.RedirectStatusCode = http.StatusFound
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)

		ctx := subgate.WithForwardedCookies(c.UserContext(), c.Get(fiber.HeaderCookie))
		decision := cfg.Gate.Decide(ctx, c.Path(), userID)

		if decision.Action == subgate.ActionAllow {
			return c.Next()
		}
		return c.Redirect(decision.Location, cfg.RedirectStatusCode)
	}
}

// FromLocals returns an UserIDExtractor that gets user ID from Fiber locals
func FromLocals(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if userID, ok := c.Locals(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}
