package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mealplanhq/subgate/pkg/billing"
	"github.com/mealplanhq/subgate/pkg/subgate"
)

const (
	providerName       = "stripe"
	defaultHTTPTimeout = 10 * time.Second

	// Metadata keys injected at checkout-session creation and read back by
	// the webhook handler.
	metadataUserIDKey   = "user_id"
	metadataPlanTypeKey = "plan_type"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Store, PlanMapping, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	store         subgate.Store
	config        Config
	httpClient    *http.Client
	planMapping   map[string]string // Price ID -> plan
	webhookSecret []byte
	apiKey        string
	stripeClient  *stripe.Client
	metrics       billing.Metrics
	logger        subgate.Logger
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	// Create Stripe client (new API in v82+)
	stripeClient := stripe.NewClient(apiKey)

	webhookSecret := []byte(strings.TrimSpace(config.StripeWebhookSecret))

	// Price IDs are matched case-insensitively
	planMapping := make(map[string]string)
	for k, v := range config.PlanMapping {
		planMapping[strings.ToLower(k)] = v
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	logger := config.Logger
	if logger == nil {
		logger = &subgate.NoopLogger{}
	}

	return &Provider{
		store:         config.Store,
		config:        config,
		httpClient:    httpClient,
		planMapping:   planMapping,
		webhookSecret: webhookSecret,
		apiKey:        apiKey,
		stripeClient:  stripeClient,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}

// MapPriceToPlan maps a Stripe Price ID to an application plan identifier.
// Returns empty string when the price is not configured.
func (p *Provider) MapPriceToPlan(priceID string) string {
	if priceID == "" {
		return ""
	}
	return p.planMapping[strings.ToLower(strings.TrimSpace(priceID))]
}

// priceIDForPlan returns the Stripe Price ID for a given plan identifier.
// This is the reverse of MapPriceToPlan.
//
// Note: If multiple Price IDs map to the same plan (e.g., monthly and yearly
// billing of one tier), this returns the first match found; map them as
// distinct plans in your configuration to disambiguate.
func (p *Provider) priceIDForPlan(plan string) string {
	for priceID, mapped := range p.planMapping {
		if mapped == plan {
			return priceID
		}
	}
	return ""
}
