// Package engine orchestrates authorization execution: temporal check,
// replay check, signature check, then atomic settlement of the recipient
// and relayer transfers.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/grantmike/EIPs/pkg/codec"
	"github.com/grantmike/EIPs/pkg/ledger"
	"github.com/grantmike/EIPs/pkg/registry"
	"github.com/grantmike/EIPs/pkg/signer"
	"github.com/grantmike/EIPs/pkg/types"
)

// EventSink receives AuthorizationUsed events. Sinks are invoked
// synchronously after settlement commits; they must not block.
type EventSink interface {
	AuthorizationUsed(event types.AuthorizationUsed)
}

// SinkFunc adapts a plain function to an EventSink.
type SinkFunc func(event types.AuthorizationUsed)

// AuthorizationUsed calls f.
func (f SinkFunc) AuthorizationUsed(event types.AuthorizationUsed) {
	f(event)
}

// Config holds engine construction parameters.
type Config struct {
	// DomainSeparator is the 32-byte domain tag; the engine treats it as
	// opaque input.
	DomainSeparator common.Hash

	// Registry is the replay-safety store.
	Registry registry.Registry

	// Ledger performs the value movements.
	Ledger ledger.Ledger

	// Recover is the signature recovery capability. Defaults to
	// signer.Recover.
	Recover signer.RecoverFunc

	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger is optional; a no-op logger is used if nil.
	Logger *zap.Logger
}

// Engine validates and executes signed transfer authorizations. Rejections
// have zero observable side effects; a successful execution settles both
// transfers and consumes the nonce as one unit, exactly once.
type Engine struct {
	domainSeparator common.Hash
	registry        registry.Registry
	ledger          ledger.Ledger
	recoverSigner   signer.RecoverFunc
	now             func() time.Time
	logger          *zap.Logger

	// Per-authorizer sharded locks. Settlement for one authorizer is
	// serialized so racing submissions interleave as whole units.
	settleLocks [256]sync.Mutex

	sinkMu sync.RWMutex
	sinks  []EventSink
}

// NewEngine creates an engine from the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	recoverFn := cfg.Recover
	if recoverFn == nil {
		recoverFn = signer.Recover
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		domainSeparator: cfg.DomainSeparator,
		registry:        cfg.Registry,
		ledger:          cfg.Ledger,
		recoverSigner:   recoverFn,
		now:             now,
		logger:          log,
	}, nil
}

// Subscribe registers a sink for AuthorizationUsed events.
func (e *Engine) Subscribe(sink EventSink) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// PermissionlessTransferWithAuthorization executes one signed authorization
// submitted by caller. On success, auth.Value moves from the authorizer to
// auth.To and auth.RelayerValue moves from the authorizer to caller, both
// debiting the same balance. Checks run cheapest first; any rejection
// surfaces a specific reason from the types package and leaves no trace.
func (e *Engine) PermissionlessTransferWithAuthorization(ctx context.Context, caller common.Address, auth *types.Authorization, signature []byte) error {
	if err := validateRecord(auth); err != nil {
		return err
	}

	// Temporal window, strict on both ends.
	now := big.NewInt(e.now().Unix())
	if now.Cmp(auth.ValidAfter) <= 0 {
		return types.ErrNotYetValid
	}
	if now.Cmp(auth.ValidBefore) >= 0 {
		return types.ErrExpired
	}

	// Replay pre-check. The authoritative check is the consume step; this
	// one exists so a replay is rejected before the signature math runs.
	consumed, err := e.registry.IsConsumed(ctx, auth.From, auth.Nonce)
	if err != nil {
		return errors.Wrap(err, "replay check failed")
	}
	if consumed {
		return types.ErrAlreadyUsed
	}

	// Signature.
	digest, err := codec.Digest(e.domainSeparator, auth)
	if err != nil {
		return errors.Wrap(err, "digest failed")
	}
	recovered, err := e.recoverSigner(digest, signature)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrInvalidSignature, err)
	}
	if recovered != auth.From {
		return types.ErrInvalidSignature
	}

	// Settlement. The registry runs the transfers inside its consume
	// transaction; a failed transfer aborts the consumption, a lost race
	// surfaces as ErrAlreadyUsed with no partial effect.
	lock := &e.settleLocks[auth.From[common.AddressLength-1]]
	lock.Lock()
	defer lock.Unlock()

	err = e.registry.Consume(ctx, auth.From, auth.Nonce, func() error {
		if err := e.ledger.Transfer(ctx, auth.From, auth.To, auth.Value); err != nil {
			return err
		}
		if err := e.ledger.Transfer(ctx, auth.From, caller, auth.RelayerValue); err != nil {
			// Unwind the recipient leg before the consumption is dropped.
			if revErr := e.ledger.Transfer(ctx, auth.To, auth.From, auth.Value); revErr != nil {
				e.logger.Sugar().Errorw("Failed to reverse recipient transfer after settlement failure",
					"authorizer", auth.From.Hex(),
					"nonce", auth.Nonce.Hex(),
					"error", revErr,
				)
				return errors.Wrapf(err, "relayer transfer failed and recipient leg could not be reversed: %s", revErr)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	event := types.AuthorizationUsed{Authorizer: auth.From, Nonce: auth.Nonce}
	e.emit(event)

	e.logger.Sugar().Infow("Authorization consumed",
		"authorizer", auth.From.Hex(),
		"recipient", auth.To.Hex(),
		"relayer", caller.Hex(),
		"value", auth.Value.String(),
		"relayerValue", auth.RelayerValue.String(),
		"nonce", auth.Nonce.Hex(),
	)

	return nil
}

// IsAuthorizationUsed reports whether the (authorizer, nonce) pair has been
// consumed. Read-only; exposed for relayers probing before submission.
func (e *Engine) IsAuthorizationUsed(ctx context.Context, authorizer common.Address, nonce types.Nonce) (bool, error) {
	return e.registry.IsConsumed(ctx, authorizer, nonce)
}

func (e *Engine) emit(event types.AuthorizationUsed) {
	e.sinkMu.RLock()
	defer e.sinkMu.RUnlock()

	for _, sink := range e.sinks {
		sink.AuthorizationUsed(event)
	}
}

func validateRecord(auth *types.Authorization) error {
	if auth == nil {
		return fmt.Errorf("authorization is nil")
	}
	for field, v := range map[string]*big.Int{
		"value":        auth.Value,
		"relayerValue": auth.RelayerValue,
		"validAfter":   auth.ValidAfter,
		"validBefore":  auth.ValidBefore,
	} {
		if v == nil {
			return fmt.Errorf("authorization %s is nil", field)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("authorization %s is negative", field)
		}
	}
	return nil
}
