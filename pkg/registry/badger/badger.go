package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/grantmike/EIPs/pkg/registry"
	"github.com/grantmike/EIPs/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixConsumed    = "consumed:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// Ensure BadgerRegistry implements registry.Registry
var _ registry.Registry = (*BadgerRegistry)(nil)

// BadgerRegistry is a durable, disk-based registry implementation.
// SyncWrites is enabled so a consumed nonce survives a crash; that is the
// whole point of the store.
//
// Consumption commits the claim before settlement runs and releases it if
// settlement fails, the same shape as the redis backend. A commit failure
// therefore happens before any funds move. The write mutex is held across
// Consume so that claim-settle-release is one indivisible step relative to
// other consumers.
type BadgerRegistry struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// NewBadgerRegistry opens (or creates) a Badger-backed registry at dataPath.
// A background goroutine runs periodic value log garbage collection.
func NewBadgerRegistry(dataPath string, logger *zap.Logger) (*BadgerRegistry, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // fsync on every write; consumed must mean consumed
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	br := &BadgerRegistry{
		db:     db,
		logger: logger,
	}

	if err := br.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	br.gcCancel = cancel
	br.gcWg.Add(1)
	go br.runGC(ctx)

	logger.Sugar().Infow("Badger registry initialized", "path", absPath)

	return br, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerRegistry) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerRegistry) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func entryKey(authorizer common.Address, nonce types.Nonce) []byte {
	return []byte(keyPrefixConsumed + registry.EntryKey(authorizer, nonce))
}

// IsConsumed reports whether the pair has been consumed.
func (b *BadgerRegistry) IsConsumed(_ context.Context, authorizer common.Address, nonce types.Nonce) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, fmt.Errorf("registry is closed")
	}

	consumed := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(entryKey(authorizer, nonce))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read consumption entry: %w", err)
	}

	return consumed, nil
}

// Consume durably commits the consumption claim, then runs settle, then
// deletes the claim again if settlement fails. The claim is always on disk
// before any settlement side effect exists; a failed commit means nothing
// has moved, and a crash after the commit leaves the nonce burned without
// a settlement - an authorization can be lost, never replayed.
func (b *BadgerRegistry) Consume(_ context.Context, authorizer common.Address, nonce types.Nonce, settle func() error) error {
	if settle == nil {
		return fmt.Errorf("settle callback is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("registry is closed")
	}

	key := entryKey(authorizer, nonce)
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return types.ErrAlreadyUsed
		}
		if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to read consumption entry: %w", err)
		}

		return txn.Set(key, []byte{1})
	})
	if err != nil {
		return err
	}

	if err := settle(); err != nil {
		delErr := b.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Delete(key)
		})
		if delErr != nil {
			// The claim could not be released; the nonce stays burned.
			b.logger.Sugar().Errorw("Failed to roll back consumption entry",
				"authorizer", authorizer.Hex(),
				"nonce", nonce.Hex(),
				"error", delErr,
			)
		}
		return err
	}

	return nil
}

// Close shuts down the registry.
func (b *BadgerRegistry) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger registry closed")
	return nil
}

// HealthCheck verifies the database is accessible.
func (b *BadgerRegistry) HealthCheck() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("registry is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
