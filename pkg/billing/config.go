package billing

import (
	"net/http"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// Config defines the standard configuration all providers should accept.
type Config struct {
	// Store is the profile store that webhook events update.
	Store subgate.Store

	// PlanMapping maps provider price IDs to application plan identifiers.
	// For example: map[string]string{"price_1Abc": "week", "price_1Def": "month"}
	PlanMapping map[string]string

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// APIKey is used for outbound API calls to the payment provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// Metrics is an optional metrics collector for tracking provider
	// operations. If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for
	// Prometheus metrics.
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger).
	Logger subgate.Logger
}
