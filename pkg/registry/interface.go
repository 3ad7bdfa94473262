// Package registry tracks which (authorizer, nonce) pairs have been
// consumed. Entries are permanent: once consumed, never reset, never
// expired. This is what makes replaying an authorization impossible
// arbitrarily far in the future.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/grantmike/EIPs/pkg/types"
)

// Registry is the replay-safety store. All implementations must be
// thread-safe.
//
// Consume is the atomic unit of the whole engine: it transitions the
// (authorizer, nonce) entry from absent to consumed and runs the settle
// callback inside the same critical section or storage transaction. If
// settle returns an error the consumption must not persist, so a failed
// settlement leaves the authorization fully reusable. Two callers racing
// on the same pair must observe exactly one winner; the loser gets
// types.ErrAlreadyUsed with no partial effect.
type Registry interface {
	// IsConsumed reports whether the pair has been consumed. Absence of
	// an entry means unconsumed.
	IsConsumed(ctx context.Context, authorizer common.Address, nonce types.Nonce) (bool, error)

	// Consume atomically marks the pair consumed and runs settle within
	// the same atomic unit. Returns types.ErrAlreadyUsed if the pair was
	// consumed before, or the settle error (with consumption rolled back)
	// if settlement fails.
	Consume(ctx context.Context, authorizer common.Address, nonce types.Nonce, settle func() error) error

	// Close cleanly shuts down the registry. Idempotent.
	Close() error

	// HealthCheck verifies the backing store is operational.
	HealthCheck() error
}

// EntryKey is the canonical string key for an (authorizer, nonce) pair,
// shared by the keyed backends so dumps stay comparable across them.
func EntryKey(authorizer common.Address, nonce types.Nonce) string {
	return authorizer.Hex() + ":" + nonce.Hex()
}
