package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/grantmike/EIPs/pkg/registry"
	"github.com/grantmike/EIPs/pkg/types"
)

// Ensure MemoryRegistry implements registry.Registry
var _ registry.Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-memory registry implementation. All entries are
// lost when the process exits, so it is suitable for tests and single-run
// devnets only.
//
// The mutex is held across the settle callback, which serializes all
// consumptions. That is deliberate: the execution model only requires
// serializability, and holding the lock makes check-settle-set one
// indivisible step.
type MemoryRegistry struct {
	mu       sync.Mutex
	consumed map[string]bool
	closed   bool
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		consumed: make(map[string]bool),
	}
}

// IsConsumed reports whether the pair has been consumed.
func (m *MemoryRegistry) IsConsumed(_ context.Context, authorizer common.Address, nonce types.Nonce) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, fmt.Errorf("registry is closed")
	}

	return m.consumed[registry.EntryKey(authorizer, nonce)], nil
}

// Consume marks the pair consumed and runs settle as one atomic step.
func (m *MemoryRegistry) Consume(_ context.Context, authorizer common.Address, nonce types.Nonce, settle func() error) error {
	if settle == nil {
		return fmt.Errorf("settle callback is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	key := registry.EntryKey(authorizer, nonce)
	if m.consumed[key] {
		return types.ErrAlreadyUsed
	}

	if err := settle(); err != nil {
		// Entry was never written; the authorization stays usable.
		return err
	}

	m.consumed[key] = true
	return nil
}

// Close shuts down the registry.
func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the registry is operational.
func (m *MemoryRegistry) HealthCheck() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("registry is closed")
	}

	return nil
}
