package api

import (
	"fmt"
	"net/http"

	"github.com/mealplanhq/subgate/pkg/billing"
	"github.com/mealplanhq/subgate/pkg/subgate"
)

// Identity is the authenticated caller as resolved by the auth layer.
type Identity struct {
	// UserID is the external auth provider's user identifier.
	UserID string

	// Email is the caller's primary verified email address. May be empty
	// when the auth provider has no verified email on file.
	Email string
}

// IdentityExtractor resolves the authenticated identity from a request.
// Return ok=false when the request carries no authenticated session.
type IdentityExtractor func(r *http.Request) (Identity, bool)

// Config holds configuration for the subscription API handler
type Config struct {
	// Store is the profile store (required)
	Store subgate.Store

	// Billing is the payment provider used by plan-change and unsubscribe
	// (required unless only bootstrap/status endpoints are served)
	Billing billing.Provider

	// GetIdentity extracts the authenticated identity from an HTTP request
	// (required)
	GetIdentity IdentityExtractor

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default JSON error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is used for structured logging (default: NoopLogger)
	Logger subgate.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.GetIdentity == nil {
		return fmt.Errorf("getIdentity is required")
	}
	return nil
}

// NewHandler creates a new subscription API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &subgate.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common identity extraction patterns

// FromHeaders returns a GetIdentity function that reads the user id and
// email from headers, for deployments where an auth proxy resolves the
// session upstream.
func FromHeaders(userIDHeader, emailHeader string) IdentityExtractor {
	return func(r *http.Request) (Identity, bool) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			return Identity{}, false
		}
		return Identity{
			UserID: userID,
			Email:  r.Header.Get(emailHeader),
		}, true
	}
}

// FromContext returns a GetIdentity function that reads an Identity stored
// in the request context under key.
func FromContext(key interface{}) IdentityExtractor {
	return func(r *http.Request) (Identity, bool) {
		identity, ok := r.Context().Value(key).(Identity)
		return identity, ok && identity.UserID != ""
	}
}
