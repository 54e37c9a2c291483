// Package postgres provides a PostgreSQL implementation of the subgate.Store
// interface. Every mutation is a single UPDATE or INSERT ... ON CONFLICT
// statement so concurrent webhook deliveries and user-initiated updates to
// the same profile row cannot interleave into a lost update.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// Schema is the DDL for the profiles table. Apply it with Migrate or through
// your own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id                TEXT PRIMARY KEY,
	email                  TEXT NOT NULL,
	stripe_subscription_id TEXT,
	subscription_active    BOOLEAN NOT NULL DEFAULT FALSE,
	subscription_tier      TEXT,
	subscription_status    TEXT,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS profiles_stripe_subscription_id_idx
	ON profiles (stripe_subscription_id)
	WHERE stripe_subscription_id IS NOT NULL;
`

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Store implements subgate.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool creates a store from an existing pool. The caller retains
// ownership of the pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the profiles schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetProfile implements subgate.Store.
func (s *Store) GetProfile(ctx context.Context, userID string) (*subgate.Profile, error) {
	return s.getProfile(ctx,
		`SELECT user_id, email, stripe_subscription_id, subscription_active,
				subscription_tier, subscription_status, created_at, updated_at
			FROM profiles WHERE user_id = $1`,
		userID)
}

// GetProfileBySubscriptionID implements subgate.Store.
func (s *Store) GetProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*subgate.Profile, error) {
	if subscriptionID == "" {
		return nil, subgate.ErrProfileNotFound
	}
	return s.getProfile(ctx,
		`SELECT user_id, email, stripe_subscription_id, subscription_active,
				subscription_tier, subscription_status, created_at, updated_at
			FROM profiles WHERE stripe_subscription_id = $1`,
		subscriptionID)
}

func (s *Store) getProfile(ctx context.Context, query, arg string) (*subgate.Profile, error) {
	var profile subgate.Profile
	var subscriptionID, tier, status *string

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&profile.UserID,
		&profile.Email,
		&subscriptionID,
		&profile.SubscriptionActive,
		&tier,
		&status,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, subgate.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if subscriptionID != nil {
		profile.StripeSubscriptionID = *subscriptionID
	}
	if tier != nil {
		profile.SubscriptionTier = *tier
	}
	if status != nil {
		profile.SubscriptionStatus = *status
	}
	return &profile, nil
}

// CreateProfile implements subgate.Store.
func (s *Store) CreateProfile(ctx context.Context, userID, email string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, email) VALUES ($1, $2)`,
		userID, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return subgate.ErrProfileExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// ActivateSubscription implements subgate.Store.
func (s *Store) ActivateSubscription(ctx context.Context, userID, subscriptionID, tier string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			stripe_subscription_id = $2,
			subscription_active = TRUE,
			subscription_tier = $3,
			subscription_status = NULL,
			updated_at = now()
		WHERE user_id = $1`,
		userID, subscriptionID, tier)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subgate.ErrProfileNotFound
	}
	return nil
}

// UpdatePlan implements subgate.Store.
func (s *Store) UpdatePlan(ctx context.Context, userID, subscriptionID, tier string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			stripe_subscription_id = $2,
			subscription_tier = $3,
			updated_at = now()
		WHERE user_id = $1`,
		userID, subscriptionID, tier)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subgate.ErrProfileNotFound
	}
	return nil
}

// MarkPastDue implements subgate.Store.
func (s *Store) MarkPastDue(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return subgate.ErrProfileNotFound
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			subscription_status = $2,
			subscription_active = FALSE,
			updated_at = now()
		WHERE stripe_subscription_id = $1`,
		subscriptionID, subgate.StatusPastDue)
	if err != nil {
		return fmt.Errorf("failed to mark past due: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subgate.ErrProfileNotFound
	}
	return nil
}

// MarkCanceled implements subgate.Store.
func (s *Store) MarkCanceled(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return subgate.ErrProfileNotFound
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			subscription_status = $2,
			subscription_active = FALSE,
			stripe_subscription_id = NULL,
			subscription_tier = NULL,
			updated_at = now()
		WHERE stripe_subscription_id = $1`,
		subscriptionID, subgate.StatusCanceled)
	if err != nil {
		return fmt.Errorf("failed to mark canceled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subgate.ErrProfileNotFound
	}
	return nil
}

// MarkCancelPending implements subgate.Store.
func (s *Store) MarkCancelPending(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET
			subscription_status = $2,
			updated_at = now()
		WHERE user_id = $1 AND stripe_subscription_id IS NOT NULL`,
		userID, subgate.StatusCancelPending)
	if err != nil {
		return fmt.Errorf("failed to mark cancel pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either no row or no stored subscription id; distinguish for callers.
		if _, err := s.GetProfile(ctx, userID); err != nil {
			return err
		}
		return subgate.ErrNoActiveSubscription
	}
	return nil
}
