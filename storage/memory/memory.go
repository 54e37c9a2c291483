// Package memory provides an in-memory implementation of the subgate.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// Store implements subgate.Store using an in-memory map.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*subgate.Profile
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		profiles: make(map[string]*subgate.Profile),
	}
}

// GetProfile implements subgate.Store.
func (s *Store) GetProfile(ctx context.Context, userID string) (*subgate.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, subgate.ErrProfileNotFound
	}

	// Return a copy to prevent external mutations
	profileCopy := *profile
	return &profileCopy, nil
}

// GetProfileBySubscriptionID implements subgate.Store.
func (s *Store) GetProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*subgate.Profile, error) {
	if subscriptionID == "" {
		return nil, subgate.ErrProfileNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, profile := range s.profiles {
		if profile.StripeSubscriptionID == subscriptionID {
			profileCopy := *profile
			return &profileCopy, nil
		}
	}
	return nil, subgate.ErrProfileNotFound
}

// CreateProfile implements subgate.Store.
func (s *Store) CreateProfile(ctx context.Context, userID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; ok {
		return subgate.ErrProfileExists
	}

	now := time.Now().UTC()
	s.profiles[userID] = &subgate.Profile{
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// ActivateSubscription implements subgate.Store.
func (s *Store) ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return subgate.ErrProfileNotFound
	}

	profile.StripeSubscriptionID = subscriptionID
	profile.SubscriptionActive = true
	profile.SubscriptionTier = tier
	profile.SubscriptionStatus = ""
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePlan implements subgate.Store.
func (s *Store) UpdatePlan(ctx context.Context, userID, subscriptionID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return subgate.ErrProfileNotFound
	}

	profile.StripeSubscriptionID = subscriptionID
	profile.SubscriptionTier = tier
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPastDue implements subgate.Store.
func (s *Store) MarkPastDue(ctx context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.findBySubscriptionID(subscriptionID)
	if profile == nil {
		return subgate.ErrProfileNotFound
	}

	profile.SubscriptionStatus = subgate.StatusPastDue
	profile.SubscriptionActive = false
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCanceled implements subgate.Store.
func (s *Store) MarkCanceled(ctx context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.findBySubscriptionID(subscriptionID)
	if profile == nil {
		return subgate.ErrProfileNotFound
	}

	profile.SubscriptionStatus = subgate.StatusCanceled
	profile.SubscriptionActive = false
	profile.StripeSubscriptionID = ""
	profile.SubscriptionTier = ""
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCancelPending implements subgate.Store.
func (s *Store) MarkCancelPending(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return subgate.ErrProfileNotFound
	}
	if profile.StripeSubscriptionID == "" {
		return subgate.ErrNoActiveSubscription
	}

	profile.SubscriptionStatus = subgate.StatusCancelPending
	profile.UpdatedAt = time.Now().UTC()
	return nil
}

// findBySubscriptionID must be called with the lock held.
func (s *Store) findBySubscriptionID(subscriptionID string) *subgate.Profile {
	if subscriptionID == "" {
		return nil
	}
	for _, profile := range s.profiles {
		if profile.StripeSubscriptionID == subscriptionID {
			return profile
		}
	}
	return nil
}
