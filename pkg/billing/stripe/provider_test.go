package stripe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mealplanhq/subgate/pkg/billing"
	"github.com/mealplanhq/subgate/storage/memory"
)

const (
	testStripeAPIKey        = "sk_test_1234567890"
	testStripeWebhookSecret = "whsec_test_secret"
	testUserID              = "test-user-123"
	testPriceIDMonth        = "price_month_v1"
	testPriceIDYear         = "price_year_v1"
	testPlanMonth           = "month"
	testPlanYear            = "year"
)

func TestNewProvider_Validation(t *testing.T) {
	// Missing store
	_, err := NewProvider(Config{
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	if err != billing.ErrProviderNotConfigured {
		t.Errorf("Expected ErrProviderNotConfigured for missing store, got %v", err)
	}

	// Missing API key
	_, err = NewProvider(Config{
		Config:              billing.Config{Store: memory.New()},
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	if err != billing.ErrProviderNotConfigured {
		t.Errorf("Expected ErrProviderNotConfigured for missing API key, got %v", err)
	}

	provider, err := NewProvider(Config{
		Config:              billing.Config{Store: memory.New()},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: testStripeWebhookSecret,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	if provider.Name() != "stripe" {
		t.Errorf("Name() = %s, want stripe", provider.Name())
	}
}

func TestProvider_MapPriceToPlan(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())

	tests := []struct {
		priceID string
		want    string
	}{
		{testPriceIDMonth, testPlanMonth},
		{testPriceIDYear, testPlanYear},
		{"PRICE_MONTH_V1", testPlanMonth}, // case-insensitive
		{"  price_month_v1  ", testPlanMonth},
		{"price_unknown", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := provider.MapPriceToPlan(tt.priceID); got != tt.want {
			t.Errorf("MapPriceToPlan(%q) = %q, want %q", tt.priceID, got, tt.want)
		}
	}
}

func TestProvider_PriceIDForPlan(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())

	if got := provider.priceIDForPlan(testPlanMonth); got != testPriceIDMonth {
		t.Errorf("priceIDForPlan(%s) = %q, want %q", testPlanMonth, got, testPriceIDMonth)
	}
	if got := provider.priceIDForPlan("unknown"); got != "" {
		t.Errorf("priceIDForPlan(unknown) = %q, want empty", got)
	}
}

func TestProvider_WebhookHandler_MethodNotAllowed(t *testing.T) {
	provider := newWebhookProvider(t, memory.New())

	req := httptest.NewRequest(http.MethodGet, "/stripe-webhook", http.NoBody)
	w := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
}

func TestProvider_WebhookHandler_NoSecret(t *testing.T) {
	provider, err := NewProvider(Config{
		Config:              billing.Config{Store: memory.New()},
		StripeAPIKey:        testStripeAPIKey,
		StripeWebhookSecret: "",
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/stripe-webhook", http.NoBody)
	w := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}
