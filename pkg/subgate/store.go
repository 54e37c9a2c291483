package subgate

import "context"

// Store defines the interface for profile persistence.
//
// Every mutation is a single conditional update keyed by user_id or
// stripe_subscription_id. Implementations must not read-modify-write:
// concurrent webhook deliveries and user-initiated updates may target the
// same row, and a lost update would silently desynchronize the local state
// from the payment provider.
type Store interface {
	// GetProfile retrieves a profile by auth user id.
	// Returns ErrProfileNotFound if no row exists.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// GetProfileBySubscriptionID retrieves the profile owning the given
	// provider subscription id. Returns ErrProfileNotFound if none matches.
	GetProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*Profile, error)

	// CreateProfile inserts a new profile row with default subscription
	// fields (inactive, no subscription id, no tier).
	// Returns ErrProfileExists if a row for userID already exists.
	CreateProfile(ctx context.Context, userID, email string) error

	// ActivateSubscription records a completed checkout: sets the
	// subscription id and tier, marks the profile active, and clears any
	// previous lifecycle status. Returns ErrProfileNotFound if the user has
	// no profile row.
	ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error

	// UpdatePlan records a plan change: sets the tier and the (possibly
	// changed) subscription id for the user.
	UpdatePlan(ctx context.Context, userID, subscriptionID, tier string) error

	// MarkPastDue records a failed invoice payment for the profile owning
	// subscriptionID: status past_due, inactive. The subscription id is
	// retained so later events can still locate the row.
	MarkPastDue(ctx context.Context, subscriptionID string) error

	// MarkCanceled records a provider-side subscription deletion for the
	// profile owning subscriptionID: status canceled, inactive, subscription
	// id and tier cleared.
	MarkCanceled(ctx context.Context, subscriptionID string) error

	// MarkCancelPending records a user-initiated cancel-at-period-end. The
	// subscription id is retained and the profile stays active until the
	// provider delivers customer.subscription.deleted.
	MarkCancelPending(ctx context.Context, userID string) error
}
