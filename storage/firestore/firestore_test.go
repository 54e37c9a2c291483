package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

const (
	testProjectID = "test-project"
	emulatorHost  = "localhost:8080"
)

// setupTestStore connects to the Firestore emulator and returns a store
// backed by a per-test collection. Tests are skipped when the emulator is
// not running.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", emulatorHost)
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	collection := fmt.Sprintf("test_profiles_%s_%d", t.Name(), time.Now().UnixNano())
	store, err := New(client, Config{Collection: collection})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// Probe connectivity so missing emulators skip instead of failing
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := store.GetProfile(probeCtx, "__probe__"); err != nil && !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Skipf("Firestore emulator not available: %v", err)
	}

	return store
}

func TestStore_CreateGetProfile(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "user1")
	if !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got %v", err)
	}

	if err := store.CreateProfile(ctx, "user1", "user1@example.com"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	profile, err := store.GetProfile(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.UserID != "user1" || profile.Email != "user1@example.com" {
		t.Errorf("Unexpected profile: %+v", profile)
	}
	if profile.SubscriptionActive {
		t.Error("New profile should not have an active subscription")
	}

	err = store.CreateProfile(ctx, "user1", "other@example.com")
	if !errors.Is(err, subgate.ErrProfileExists) {
		t.Errorf("Expected ErrProfileExists, got %v", err)
	}
}

func TestStore_SubscriptionLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateProfile(ctx, "user1", "user1@example.com"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := store.ActivateSubscription(ctx, "user1", "sub_123", "month"); err != nil {
		t.Fatalf("ActivateSubscription failed: %v", err)
	}
	profile, _ := store.GetProfile(ctx, "user1")
	if !profile.SubscriptionActive || profile.StripeSubscriptionID != "sub_123" {
		t.Errorf("Unexpected profile after activation: %+v", profile)
	}

	profile, err := store.GetProfileBySubscriptionID(ctx, "sub_123")
	if err != nil {
		t.Fatalf("GetProfileBySubscriptionID failed: %v", err)
	}
	if profile.UserID != "user1" {
		t.Errorf("UserID = %s, want user1", profile.UserID)
	}

	if err := store.MarkPastDue(ctx, "sub_123"); err != nil {
		t.Fatalf("MarkPastDue failed: %v", err)
	}
	profile, _ = store.GetProfile(ctx, "user1")
	if profile.SubscriptionActive || profile.SubscriptionStatus != subgate.StatusPastDue {
		t.Errorf("Unexpected profile after payment failure: %+v", profile)
	}

	if err := store.MarkCanceled(ctx, "sub_123"); err != nil {
		t.Fatalf("MarkCanceled failed: %v", err)
	}
	profile, _ = store.GetProfile(ctx, "user1")
	if profile.SubscriptionStatus != subgate.StatusCanceled || profile.StripeSubscriptionID != "" {
		t.Errorf("Unexpected profile after cancellation: %+v", profile)
	}
}

func TestStore_MarkCancelPending(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateProfile(ctx, "user1", "user1@example.com"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	err := store.MarkCancelPending(ctx, "user1")
	if !errors.Is(err, subgate.ErrNoActiveSubscription) {
		t.Errorf("Expected ErrNoActiveSubscription, got %v", err)
	}

	err = store.MarkCancelPending(ctx, "nobody")
	if !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got %v", err)
	}

	if err := store.ActivateSubscription(ctx, "user1", "sub_123", "month"); err != nil {
		t.Fatalf("ActivateSubscription failed: %v", err)
	}
	if err := store.MarkCancelPending(ctx, "user1"); err != nil {
		t.Fatalf("MarkCancelPending failed: %v", err)
	}

	profile, _ := store.GetProfile(ctx, "user1")
	if profile.SubscriptionStatus != subgate.StatusCancelPending {
		t.Errorf("SubscriptionStatus = %s, want %s", profile.SubscriptionStatus, subgate.StatusCancelPending)
	}
	if !profile.SubscriptionActive || profile.StripeSubscriptionID != "sub_123" {
		t.Error("Cancel-pending must keep the profile active with its subscription id")
	}
}

func TestStore_MutationsOnMissingDocs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.ActivateSubscription(ctx, "nobody", "sub_1", "month"); !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Errorf("ActivateSubscription: expected ErrProfileNotFound, got %v", err)
	}
	if err := store.MarkPastDue(ctx, "sub_unknown"); !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Errorf("MarkPastDue: expected ErrProfileNotFound, got %v", err)
	}
	if err := store.MarkCanceled(ctx, ""); !errors.Is(err, subgate.ErrProfileNotFound) {
		t.Errorf("MarkCanceled(empty): expected ErrProfileNotFound, got %v", err)
	}
}
