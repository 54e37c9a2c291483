package billing

import (
	"context"
	"net/http"
	"time"
)

// Provider is the generic interface that any payment backend must implement.
// This keeps the HTTP API and middleware independent of the concrete
// payment provider.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes the provider's
	// signed lifecycle events. The implementation handles signature
	// verification, parsing, and Store updates internally.
	WebhookHandler() http.Handler

	// ChangePlan switches the live subscription to the price mapped from
	// plan, with proration enabled and any pending cancellation cleared.
	// Returns the updated subscription.
	ChangePlan(ctx context.Context, subscriptionID, plan string) (*Subscription, error)

	// CancelAtPeriodEnd schedules the subscription for cancellation at the
	// end of the current billing period. The provider keeps the
	// subscription live until then and delivers a deletion event when it
	// actually ends.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// Subscription is the provider-neutral view of a payment-provider
// subscription returned by plan-change and cancellation calls.
type Subscription struct {
	// ID is the provider's subscription identifier.
	ID string `json:"id"`

	// Status is the provider-side status ("active", "past_due", ...).
	Status string `json:"status"`

	// Plan is the application plan identifier the subscription maps to.
	Plan string `json:"plan,omitempty"`

	// CancelAtPeriodEnd is true when the subscription is scheduled to end
	// at the close of the current period.
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`

	// CurrentPeriodEnd is when the current billing period closes (zero if
	// the provider did not report it).
	CurrentPeriodEnd time.Time `json:"current_period_end,omitempty"`
}
