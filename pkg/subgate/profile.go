// Package subgate provides the core types for webhook-driven subscription
// gating: the per-user Profile record, the Store interface that persistence
// adapters implement, and the Gate that decides per-request access.
package subgate

import "time"

// Subscription status values written by the webhook and unsubscribe paths.
// SubscriptionActive is always updated in the same statement as
// SubscriptionStatus so the two fields cannot drift.
const (
	StatusPastDue       = "past_due"
	StatusCanceled      = "canceled"
	StatusCancelPending = "cancel_pending"
)

// Profile is the persisted per-user record tracking subscription state.
// It is keyed by the external auth provider's user identifier.
type Profile struct {
	// UserID is the external auth identifier. Unique and immutable.
	UserID string `json:"user_id"`

	// Email is captured at profile creation and not synchronized afterwards.
	Email string `json:"email"`

	// StripeSubscriptionID is set by checkout completion and cleared when
	// the subscription is deleted. Empty string means no subscription.
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`

	// SubscriptionActive is true while a paid subscription is current.
	SubscriptionActive bool `json:"subscription_active"`

	// SubscriptionTier is the plan identifier ("week", "month", "year", ...).
	SubscriptionTier string `json:"subscription_tier,omitempty"`

	// SubscriptionStatus holds the last lifecycle transition
	// (StatusPastDue, StatusCanceled, StatusCancelPending).
	SubscriptionStatus string `json:"subscription_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSubscription reports whether the profile references a provider-side
// subscription that plan changes and cancellation can act on.
func (p *Profile) HasSubscription() bool {
	return p != nil && p.StripeSubscriptionID != ""
}
