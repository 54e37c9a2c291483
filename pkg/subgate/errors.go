package subgate

import "errors"

var (
	// ErrProfileNotFound is returned when no profile exists for the given key.
	// The bootstrap path treats this as benign; everything else treats it as
	// a hard failure.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileExists is returned by CreateProfile when a row already exists
	// for the user. Two concurrent first-requests can both observe "not
	// found"; the store's unique constraint resolves the race and the loser
	// receives this error.
	ErrProfileExists = errors.New("profile already exists")

	// ErrNoActiveSubscription is returned when an operation requires a stored
	// subscription id and the profile has none.
	ErrNoActiveSubscription = errors.New("no active subscription found")
)
