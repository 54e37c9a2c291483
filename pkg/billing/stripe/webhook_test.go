package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mealplanhq/subgate/pkg/billing"
	"github.com/mealplanhq/subgate/pkg/subgate"
	"github.com/mealplanhq/subgate/storage/memory"
)

// signPayload produces a Stripe-Signature header value for the given body,
// matching the scheme ConstructEvent verifies (v1 = HMAC-SHA256 of
// "timestamp.payload").
func signPayload(secret string, body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookProvider(t *testing.T, store subgate.Store) *Provider {
	t.Helper()
	provider, err := NewProvider(Config{
		Config: billing.Config{
			Store: store,
			PlanMapping: map[string]string{
				testPriceIDMonth: testPlanMonth,
				testPriceIDYear:  testPlanYear,
			},
		},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func postWebhook(t *testing.T, provider *Provider, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stripe-webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(w, req)
	return w
}

func checkoutCompletedEvent(userID, plan, subscriptionID string) string {
	return fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"metadata": {"user_id": %q, "plan_type": %q},
				"subscription": {"id": %q}
			}
		}
	}`, userID, plan, subscriptionID)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")

	provider := newWebhookProvider(t, store)
	body := checkoutCompletedEvent(testUserID, testPlanMonth, "sub_123")

	w := postWebhook(t, provider, body, signPayload("whsec_wrong", []byte(body), time.Now()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	// The store must be untouched
	profile, err := store.GetProfile(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.SubscriptionActive || profile.StripeSubscriptionID != "" {
		t.Error("Rejected event must not mutate the store")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())
	body := checkoutCompletedEvent(testUserID, testPlanMonth, "sub_123")

	w := postWebhook(t, provider, body, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
}

func TestWebhook_CheckoutSessionCompleted(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")

	provider := newWebhookProvider(t, store)
	body := checkoutCompletedEvent(testUserID, testPlanMonth, "sub_123")

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	profile, err := store.GetProfile(ctx, testUserID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if !profile.SubscriptionActive {
		t.Error("Expected active subscription after checkout completion")
	}
	if profile.StripeSubscriptionID != "sub_123" {
		t.Errorf("StripeSubscriptionID = %s, want sub_123", profile.StripeSubscriptionID)
	}
	if profile.SubscriptionTier != testPlanMonth {
		t.Errorf("SubscriptionTier = %s, want %s", profile.SubscriptionTier, testPlanMonth)
	}
}

func TestWebhook_CheckoutMissingMetadata(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")

	provider := newWebhookProvider(t, store)

	// No metadata.user_id: permanently unprocessable, acknowledged with 200
	body := `{
		"id": "evt_test_2",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_2", "subscription": {"id": "sub_123"}}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for dropped event, got %d", w.Code)
	}

	profile, _ := store.GetProfile(ctx, testUserID)
	if profile.SubscriptionActive || profile.StripeSubscriptionID != "" {
		t.Error("Dropped event must not mutate the store")
	}
}

func TestWebhook_CheckoutUnknownProfile(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())
	body := checkoutCompletedEvent("ghost", testPlanMonth, "sub_123")

	// Unknown user is permanent, not retryable
	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for dropped event, got %d", w.Code)
	}
}

func TestWebhook_InvoicePaymentFailed(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")
	_ = store.ActivateSubscription(ctx, testUserID, "sub_123", testPlanMonth)

	provider := newWebhookProvider(t, store)
	body := `{
		"id": "evt_test_3",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_test_1", "subscription": "sub_123"}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	profile, _ := store.GetProfile(ctx, testUserID)
	if profile.SubscriptionActive {
		t.Error("Expected inactive subscription after payment failure")
	}
	if profile.SubscriptionStatus != subgate.StatusPastDue {
		t.Errorf("SubscriptionStatus = %s, want %s", profile.SubscriptionStatus, subgate.StatusPastDue)
	}
	if profile.StripeSubscriptionID != "sub_123" {
		t.Error("Payment failure must keep the subscription id")
	}
}

func TestWebhook_InvoicePaymentFailed_ExpandedSubscription(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")
	_ = store.ActivateSubscription(ctx, testUserID, "sub_123", testPlanMonth)

	provider := newWebhookProvider(t, store)

	// Subscription delivered as an expanded object rather than an id string
	body := `{
		"id": "evt_test_4",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_test_2", "subscription": {"id": "sub_123"}}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	profile, _ := store.GetProfile(ctx, testUserID)
	if profile.SubscriptionStatus != subgate.StatusPastDue {
		t.Errorf("SubscriptionStatus = %s, want %s", profile.SubscriptionStatus, subgate.StatusPastDue)
	}
}

func TestWebhook_NonSubscriptionInvoiceDropped(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())
	body := `{
		"id": "evt_test_5",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_test_3"}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for non-subscription invoice, got %d", w.Code)
	}
}

func TestWebhook_SubscriptionDeleted(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_ = store.CreateProfile(ctx, testUserID, "user@example.com")
	_ = store.ActivateSubscription(ctx, testUserID, "sub_123", testPlanMonth)

	provider := newWebhookProvider(t, store)
	body := `{
		"id": "evt_test_6",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_123", "status": "canceled"}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	profile, _ := store.GetProfile(ctx, testUserID)
	if profile.SubscriptionActive {
		t.Error("Expected inactive subscription after deletion")
	}
	if profile.SubscriptionStatus != subgate.StatusCanceled {
		t.Errorf("SubscriptionStatus = %s, want %s", profile.SubscriptionStatus, subgate.StatusCanceled)
	}
	if profile.StripeSubscriptionID != "" {
		t.Error("Deletion must clear the subscription id")
	}
}

func TestWebhook_UnhandledEventType(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())
	body := `{
		"id": "evt_test_7",
		"object": "event",
		"api_version": "2025-10-29.clover",
		"type": "customer.created",
		"data": {"object": {"id": "cus_test_1"}}
	}`

	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for unhandled event type, got %d", w.Code)
	}
}

// failingStore simulates a transient backend outage.
type failingStore struct {
	subgate.Store
}

func (s *failingStore) ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error {
	return errors.New("connection refused")
}

func TestWebhook_TransientStoreErrorRetryable(t *testing.T) {
	store := memory.New()
	_ = store.CreateProfile(context.Background(), testUserID, "user@example.com")

	provider := newWebhookProvider(t, &failingStore{Store: store})
	body := checkoutCompletedEvent(testUserID, testPlanMonth, "sub_123")

	// Store failures must return 500 so Stripe redelivers
	w := postWebhook(t, provider, body, signPayload(testStripeWebhookSecret, []byte(body), time.Now()))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500 for transient store error, got %d", w.Code)
	}
}
