// Package http provides HTTP middleware for subscription access gating
package http

import (
	"net/http"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Gate decides pass-through vs. redirect per request (required)
	Gate *subgate.Gate

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// RedirectStatusCode is the HTTP status used for redirects
	// Default: 302 Found
	RedirectStatusCode int
}

// Middleware creates an HTTP middleware that gates requests on
// authentication and subscription-active status
func Middleware(config Config) func(http.Handler) http.Handler {
	// Validate required configuration at startup (fail fast)
	if config.Gate == nil {
		panic("subgate/http: Config.Gate is required")
	}
	if config.GetUserID == nil {
		panic("subgate/http: Config.GetUserID is required")
	}
	if config.RedirectStatusCode == 0 {
		config.RedirectStatusCode = http.StatusFound
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)

			ctx := subgate.WithForwardedCookies(r.Context(), r.Header.Get("Cookie"))
			decision := config.Gate.Decide(ctx, r.URL.Path, userID)

			if decision.Action == subgate.ActionAllow {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, decision.Location, config.RedirectStatusCode)
		})
	}
}

// HandlerFunc creates an HTTP middleware that gates requests (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "subgate:userID"
)

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
