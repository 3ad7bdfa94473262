package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grantmike/EIPs/pkg/registry"
	"github.com/grantmike/EIPs/pkg/types"
)

const (
	keyPrefixConsumed    = "auth:consumed:"
	keySchemaVersion     = "auth:metadata:schema_version"
	currentSchemaVersion = "v1"

	defaultDialTimeout = 5 * time.Second
)

// Ensure RedisRegistry implements registry.Registry
var _ registry.Registry = (*RedisRegistry)(nil)

// RedisRegistry is a registry implementation backed by Redis, suitable for
// deployments where several relayer frontends share one replay store.
//
// Consumption is claimed with SETNX, which makes the check-then-set race
// free across processes. The settle callback runs after the claim; on
// settle failure the claim is deleted again. A crash in that narrow window
// leaves the nonce burned without a settlement, which is the fail-closed
// direction - an authorization can be lost, never replayed.
type RedisRegistry struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.Mutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys, for
	// multi-tenant setups. If empty, keys use the default "auth:" prefix.
	KeyPrefix string
}

// NewRedisRegistry creates a new Redis-backed registry and verifies
// connectivity before returning.
func NewRedisRegistry(cfg *RedisConfig, logger *zap.Logger) (*RedisRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	rr := &RedisRegistry{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rr.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis registry initialized", "address", cfg.Address, "db", cfg.DB)

	return rr, nil
}

func (r *RedisRegistry) initSchema(ctx context.Context) error {
	key := r.keyPrefix + keySchemaVersion

	existing, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, key, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existing != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}

	return nil
}

func (r *RedisRegistry) entryKey(authorizer common.Address, nonce types.Nonce) string {
	return r.keyPrefix + keyPrefixConsumed + registry.EntryKey(authorizer, nonce)
}

// IsConsumed reports whether the pair has been consumed.
func (r *RedisRegistry) IsConsumed(ctx context.Context, authorizer common.Address, nonce types.Nonce) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, fmt.Errorf("registry is closed")
	}
	r.mu.Unlock()

	n, err := r.client.Exists(ctx, r.entryKey(authorizer, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read consumption entry: %w", err)
	}

	return n > 0, nil
}

// Consume claims the pair with SETNX, runs settle, and deletes the claim
// again if settlement fails. Entries are written with no expiry.
func (r *RedisRegistry) Consume(ctx context.Context, authorizer common.Address, nonce types.Nonce, settle func() error) error {
	if settle == nil {
		return fmt.Errorf("settle callback is nil")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry is closed")
	}
	r.mu.Unlock()

	key := r.entryKey(authorizer, nonce)

	claimed, err := r.client.SetNX(ctx, key, "1", 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim consumption entry: %w", err)
	}
	if !claimed {
		return types.ErrAlreadyUsed
	}

	if err := settle(); err != nil {
		if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
			// The claim could not be released; the nonce stays burned.
			r.logger.Sugar().Errorw("Failed to roll back consumption claim",
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
func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis registry closed")
	return nil
}

// HealthCheck verifies the Redis connection is alive.
func (r *RedisRegistry) HealthCheck() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry is closed")
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}
