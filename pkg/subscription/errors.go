package subscription

import "errors"

var (
	// ErrNotFound indicates the subscription does not exist or is owned by
	// another client.
	ErrNotFound = errors.New("subscription not found")

	// ErrLimitExceeded indicates the client already holds the maximum number
	// of live subscriptions.
	ErrLimitExceeded = errors.New("subscription limit reached")
)
