package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mealplanhq/subgate/pkg/billing"
)

// ChangePlan switches the live subscription's first line item to the price
// mapped from plan, with proration enabled and any pending
// cancel-at-period-end cleared.
func (p *Provider) ChangePlan(ctx context.Context, subscriptionID, plan string) (*billing.Subscription, error) {
	startTime := time.Now()

	priceID := p.priceIDForPlan(plan)
	if priceID == "" {
		p.metrics.RecordAPICall(providerName, "/subscriptions/update", "plan_not_found")
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanNotConfigured, plan)
	}

	sub, err := p.stripeClient.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions/retrieve", "error")
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		p.metrics.RecordAPICall(providerName, "/subscriptions/update", "item_not_found")
		return nil, billing.ErrSubscriptionItemNotFound
	}
	itemID := sub.Items.Data[0].ID

	previousPlan := ""
	if sub.Items.Data[0].Price != nil {
		previousPlan = p.MapPriceToPlan(sub.Items.Data[0].Price.ID)
	}

	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(false),
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(itemID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}

	updated, err := p.stripeClient.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions/update", "error")
		p.metrics.RecordAPICallDuration(providerName, "/subscriptions/update", time.Since(startTime))
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions/update", "success")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions/update", time.Since(startTime))
	p.metrics.RecordPlanChange(providerName, previousPlan, plan)

	return p.toBillingSubscription(updated), nil
}

// CancelAtPeriodEnd schedules the subscription for cancellation at the end
// of the current billing period. Stripe keeps the subscription live until
// then and delivers customer.subscription.deleted when it actually ends.
func (p *Provider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	startTime := time.Now()

	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	updated, err := p.stripeClient.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions/update", "error")
		p.metrics.RecordAPICallDuration(providerName, "/subscriptions/update", time.Since(startTime))
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions/update", "success")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions/update", time.Since(startTime))

	return p.toBillingSubscription(updated), nil
}

// toBillingSubscription maps a Stripe subscription to the provider-neutral
// view. Period fields live on the subscription items in the current API.
func (p *Provider) toBillingSubscription(sub *stripe.Subscription) *billing.Subscription {
	out := &billing.Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.Plan = p.MapPriceToPlan(item.Price.ID)
		}
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return out
}
