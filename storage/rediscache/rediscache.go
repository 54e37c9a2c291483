// Package rediscache provides a read-through Redis cache decorating any
// subgate.Store. The gating middleware checks subscription status on every
// gated request, so profile reads dominate; the cache keeps that hot path
// off the primary store. Writes pass through to the underlying store and
// invalidate the cached entries.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

const (
	defaultTTL       = 30 * time.Second
	defaultKeyPrefix = "subgate:profile:"

	// notFoundSentinel is cached for missing profiles so repeated lookups
	// for unknown users do not hammer the store.
	notFoundSentinel = "__not_found__"
)

// Store decorates a subgate.Store with a Redis read-through cache.
type Store struct {
	inner     subgate.Store
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    subgate.Logger

	// group collapses concurrent cache misses for the same user into a
	// single store lookup.
	group singleflight.Group
}

// Config holds cache configuration.
type Config struct {
	// TTL is how long cached profiles live. Default: 30s.
	TTL time.Duration

	// KeyPrefix namespaces the cache keys. Default: "subgate:profile:".
	KeyPrefix string

	// Logger is used for structured logging (default: NoopLogger).
	// Cache failures are logged and bypassed, never surfaced to callers.
	Logger subgate.Logger
}

// New creates a caching store wrapping inner.
func New(inner subgate.Store, client redis.UniversalClient, config Config) (*Store, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = &subgate.NoopLogger{}
	}
	return &Store{
		inner:     inner,
		client:    client,
		ttl:       config.TTL,
		keyPrefix: config.KeyPrefix,
		logger:    logger,
	}, nil
}

// GetProfile implements subgate.Store with a read-through cache.
func (s *Store) GetProfile(ctx context.Context, userID string) (*subgate.Profile, error) {
	key := s.keyPrefix + userID

	cached, err := s.client.Get(ctx, key).Result()
	if err == nil {
		if cached == notFoundSentinel {
			return nil, subgate.ErrProfileNotFound
		}
		var profile subgate.Profile
		if err := json.Unmarshal([]byte(cached), &profile); err == nil {
			return &profile, nil
		}
		// Corrupt entry, fall through to the store.
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("profile cache read failed", subgate.F("error", err.Error()))
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		profile, err := s.inner.GetProfile(ctx, userID)
		if errors.Is(err, subgate.ErrProfileNotFound) {
			s.set(ctx, key, notFoundSentinel)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(profile); err == nil {
			s.set(ctx, key, string(data))
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*subgate.Profile), nil
}

// GetProfileBySubscriptionID implements subgate.Store. Lookups by
// subscription id come only from webhook handlers, so they go straight to
// the underlying store.
func (s *Store) GetProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*subgate.Profile, error) {
	return s.inner.GetProfileBySubscriptionID(ctx, subscriptionID)
}

// CreateProfile implements subgate.Store.
func (s *Store) CreateProfile(ctx context.Context, userID, email string) error {
	if err := s.inner.CreateProfile(ctx, userID, email); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// ActivateSubscription implements subgate.Store.
func (s *Store) ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error {
	if err := s.inner.ActivateSubscription(ctx, userID, subscriptionID, tier); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// UpdatePlan implements subgate.Store.
func (s *Store) UpdatePlan(ctx context.Context, userID, subscriptionID, tier string) error {
	if err := s.inner.UpdatePlan(ctx, userID, subscriptionID, tier); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// MarkPastDue implements subgate.Store.
func (s *Store) MarkPastDue(ctx context.Context, subscriptionID string) error {
	if err := s.inner.MarkPastDue(ctx, subscriptionID); err != nil {
		return err
	}
	s.invalidateSubscription(ctx, subscriptionID)
	return nil
}

// MarkCanceled implements subgate.Store.
func (s *Store) MarkCanceled(ctx context.Context, subscriptionID string) error {
	// Resolve the owner before the write clears the subscription id.
	owner := ""
	if profile, err := s.inner.GetProfileBySubscriptionID(ctx, subscriptionID); err == nil {
		owner = profile.UserID
	}

	if err := s.inner.MarkCanceled(ctx, subscriptionID); err != nil {
		return err
	}
	if owner != "" {
		s.invalidateUser(ctx, owner)
	}
	return nil
}

// MarkCancelPending implements subgate.Store.
func (s *Store) MarkCancelPending(ctx context.Context, userID string) error {
	if err := s.inner.MarkCancelPending(ctx, userID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

func (s *Store) set(ctx context.Context, key, value string) {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		s.logger.Warn("profile cache write failed", subgate.F("error", err.Error()))
	}
}

func (s *Store) invalidateUser(ctx context.Context, userID string) {
	if err := s.client.Del(ctx, s.keyPrefix+userID).Err(); err != nil {
		s.logger.Warn("profile cache invalidation failed",
			subgate.F("user_id", userID), subgate.F("error", err.Error()))
	}
}

func (s *Store) invalidateSubscription(ctx context.Context, subscriptionID string) {
	profile, err := s.inner.GetProfileBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return
	}
	s.invalidateUser(ctx, profile.UserID)
}
