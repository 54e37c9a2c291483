// Package firestore provides a Cloud Firestore implementation of the
// subgate.Store interface. Each profile is a single document keyed by the
// auth user id; lookups by subscription id use an indexed field query.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

const defaultCollection = "profiles"

// Store implements subgate.Store using Cloud Firestore.
type Store struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore store configuration.
type Config struct {
	// Collection is the Firestore collection holding profile documents.
	// Default: "profiles".
	Collection string
}

// New creates a new Firestore store.
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = defaultCollection
	}
	return &Store{
		client:     client,
		collection: config.Collection,
	}, nil
}

type profileDoc struct {
	UserID               string    `firestore:"user_id"`
	Email                string    `firestore:"email"`
	StripeSubscriptionID string    `firestore:"stripe_subscription_id"`
	SubscriptionActive   bool      `firestore:"subscription_active"`
	SubscriptionTier     string    `firestore:"subscription_tier"`
	SubscriptionStatus   string    `firestore:"subscription_status"`
	CreatedAt            time.Time `firestore:"created_at"`
	UpdatedAt            time.Time `firestore:"updated_at"`
}

func (d *profileDoc) toProfile() *subgate.Profile {
	return &subgate.Profile{
		UserID:               d.UserID,
		Email:                d.Email,
		StripeSubscriptionID: d.StripeSubscriptionID,
		SubscriptionActive:   d.SubscriptionActive,
		SubscriptionTier:     d.SubscriptionTier,
		SubscriptionStatus:   d.SubscriptionStatus,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// GetProfile implements subgate.Store.
func (s *Store) GetProfile(ctx context.Context, userID string) (*subgate.Profile, error) {
	snap, err := s.client.Collection(s.collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subgate.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return doc.toProfile(), nil
}

// GetProfileBySubscriptionID implements subgate.Store.
func (s *Store) GetProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*subgate.Profile, error) {
	snap, err := s.findBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return doc.toProfile(), nil
}

// CreateProfile implements subgate.Store.
func (s *Store) CreateProfile(ctx context.Context, userID, email string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	now := time.Now().UTC()
	_, err := s.client.Collection(s.collection).Doc(userID).Create(ctx, profileDoc{
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return subgate.ErrProfileExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// ActivateSubscription implements subgate.Store.
func (s *Store) ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error {
	return s.updateDoc(ctx, userID, []firestore.Update{
		{Path: "stripe_subscription_id", Value: subscriptionID},
		{Path: "subscription_active", Value: true},
		{Path: "subscription_tier", Value: tier},
		{Path: "subscription_status", Value: ""},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}

// UpdatePlan implements subgate.Store.
func (s *Store) UpdatePlan(ctx context.Context, userID, subscriptionID, tier string) error {
	return s.updateDoc(ctx, userID, []firestore.Update{
		{Path: "stripe_subscription_id", Value: subscriptionID},
		{Path: "subscription_tier", Value: tier},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}

// MarkPastDue implements subgate.Store.
func (s *Store) MarkPastDue(ctx context.Context, subscriptionID string) error {
	snap, err := s.findBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.updateDoc(ctx, snap.Ref.ID, []firestore.Update{
		{Path: "subscription_status", Value: subgate.StatusPastDue},
		{Path: "subscription_active", Value: false},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}

// MarkCanceled implements subgate.Store.
func (s *Store) MarkCanceled(ctx context.Context, subscriptionID string) error {
	snap, err := s.findBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return s.updateDoc(ctx, snap.Ref.ID, []firestore.Update{
		{Path: "subscription_status", Value: subgate.StatusCanceled},
		{Path: "subscription_active", Value: false},
		{Path: "stripe_subscription_id", Value: ""},
		{Path: "subscription_tier", Value: ""},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}

// MarkCancelPending implements subgate.Store.
// Runs in a transaction so the stored-subscription precondition and the
// status write cannot interleave with a concurrent webhook update.
func (s *Store) MarkCancelPending(ctx context.Context, userID string) error {
	ref := s.client.Collection(s.collection).Doc(userID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return subgate.ErrProfileNotFound
			}
			return err
		}

		var doc profileDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to decode profile: %w", err)
		}
		if doc.StripeSubscriptionID == "" {
			return subgate.ErrNoActiveSubscription
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "subscription_status", Value: subgate.StatusCancelPending},
			{Path: "updated_at", Value: time.Now().UTC()},
		})
	})
	return err
}

func (s *Store) findBySubscriptionID(ctx context.Context, subscriptionID string) (*firestore.DocumentSnapshot, error) {
	if subscriptionID == "" {
		return nil, subgate.ErrProfileNotFound
	}

	iter := s.client.Collection(s.collection).
		Where("stripe_subscription_id", "==", subscriptionID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, subgate.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile by subscription id: %w", err)
	}
	return snap, nil
}

func (s *Store) updateDoc(ctx context.Context, userID string, updates []firestore.Update) error {
	_, err := s.client.Collection(s.collection).Doc(userID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return subgate.ErrProfileNotFound
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}
