package credential

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("credential store: credential not found")
	ErrAlreadyConsumed = errors.New("credential store: credential already consumed")
	ErrDuplicateValue  = errors.New("credential store: credential value already exists")
	ErrUnavailable     = errors.New("credential store: store unavailable")
)

// Store is a keyed, TTL-expiring, single-use-capable credential store.
// Entries past their expiry are treated as absent by Get and Consume
// whether or not a sweep has physically removed them.
type Store interface {
	// Put stores a credential under its value. It fails with
	// ErrDuplicateValue when the value collides with a live credential.
	Put(ctx context.Context, cred Credential) error

	// Get returns the credential stored under value. Expired entries are
	// reported as ErrNotFound; revoked entries are returned as-is for the
	// caller to judge.
	Get(ctx context.Context, value string) (Credential, error)

	// Consume atomically checks validity and flips the revoked flag.
	// Concurrent consumption of the same value yields exactly one success;
	// the losers observe ErrAlreadyConsumed or ErrNotFound. The returned
	// credential is the state observed by the winning call.
	Consume(ctx context.Context, value string) (Credential, error)

	// Revoke flips the revoked flag without single-use semantics. It is
	// idempotent; revoking an absent credential reports ErrNotFound.
	Revoke(ctx context.Context, value string) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
