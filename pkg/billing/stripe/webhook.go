package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mealplanhq/subgate/pkg/billing/internal"
	"github.com/mealplanhq/subgate/pkg/subgate"
)

// dropEvent marks a webhook event as permanently unprocessable (missing
// metadata, unknown profile, non-subscription payload). Dropped events are
// logged and acknowledged with 200 so Stripe does not retry them; transient
// failures (store or provider errors) surface as 500 so Stripe redelivers.
type dropEvent struct {
	reason string
}

func (e *dropEvent) Error() string {
	return e.reason
}

func dropf(format string, args ...interface{}) error {
	return &dropEvent{reason: fmt.Sprintf(format, args...)}
}

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, 256*1024)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	// Extract signature from header
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Verify webhook signature (v83 uses stripe.ConstructEvent directly)
	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		p.logger.Warn("webhook signature verification failed",
			subgate.F("error", err.Error()))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		var drop *dropEvent
		if errors.As(err, &drop) {
			// Unprocessable forever; acknowledge so Stripe does not retry.
			p.logger.Warn("webhook event dropped",
				subgate.F("event_type", eventType),
				subgate.F("event_id", event.ID),
				subgate.F("reason", drop.reason))
			p.metrics.RecordWebhookEvent(providerName, eventType, "dropped")
		} else {
			p.logger.Error("webhook event processing failed",
				subgate.F("event_type", eventType),
				subgate.F("event_id", event.ID),
				subgate.F("error", err.Error()))
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			p.metrics.RecordWebhookEvent(providerName, eventType, "error")
			p.metrics.RecordWebhookError(providerName, "processing_error")
			p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
			return
		}
	} else {
		p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	}

	_ = internal.WriteJSON(w, http.StatusOK, map[string]any{})
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent dispatches a verified webhook event
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	default:
		p.logger.Debug("unhandled webhook event type",
			subgate.F("event_type", string(event.Type)))
		return nil
	}
}

// handleCheckoutSessionCompleted activates the profile referenced by the
// checkout session's metadata with the created subscription id and plan.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	userID := ""
	plan := ""
	if session.Metadata != nil {
		userID = session.Metadata[metadataUserIDKey]
		plan = session.Metadata[metadataPlanTypeKey]
	}
	if userID == "" {
		return dropf("metadata.%s missing on checkout session %s", metadataUserIDKey, session.ID)
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if subscriptionID == "" {
		return dropf("no subscription id on checkout session %s", session.ID)
	}

	if err := p.store.ActivateSubscription(ctx, userID, subscriptionID, plan); err != nil {
		if errors.Is(err, subgate.ErrProfileNotFound) {
			return dropf("no profile for user %s", userID)
		}
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	p.logger.Info("subscription activated",
		subgate.F("user_id", userID),
		subgate.F("subscription_id", subscriptionID),
		subgate.F("plan", plan))
	return nil
}

// handleInvoicePaymentFailed marks the owning profile past_due and inactive.
func (p *Provider) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	subscriptionID := subscriptionIDFromInvoice(event.Data.Raw)
	if subscriptionID == "" {
		// Not a subscription invoice
		return dropf("no subscription id on invoice")
	}

	if err := p.store.MarkPastDue(ctx, subscriptionID); err != nil {
		if errors.Is(err, subgate.ErrProfileNotFound) {
			return dropf("no profile owns subscription %s", subscriptionID)
		}
		return fmt.Errorf("failed to mark past due: %w", err)
	}

	p.logger.Info("subscription payment failed",
		subgate.F("subscription_id", subscriptionID))
	return nil
}

// handleSubscriptionDeleted marks the owning profile canceled and inactive.
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	if subscription.ID == "" {
		return dropf("no subscription id on deletion event")
	}

	if err := p.store.MarkCanceled(ctx, subscription.ID); err != nil {
		if errors.Is(err, subgate.ErrProfileNotFound) {
			return dropf("no profile owns subscription %s", subscription.ID)
		}
		return fmt.Errorf("failed to mark canceled: %w", err)
	}

	p.logger.Info("subscription canceled",
		subgate.F("subscription_id", subscription.ID))
	return nil
}

// subscriptionIDFromInvoice extracts the subscription id from raw invoice
// JSON. Depending on expansion the field is either an id string or an object
// (v83 Invoice struct might not carry it directly).
func subscriptionIDFromInvoice(raw []byte) string {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return ""
	}
	switch v := rawData["subscription"].(type) {
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	case string:
		return v
	}
	return ""
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
